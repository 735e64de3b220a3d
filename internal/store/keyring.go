package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	ckerrors "github.com/systmms/credkeeper/internal/errors"
)

// Keyring stores credentials in the OS keychain (Keychain, Secret Service,
// or Credential Manager depending on platform). Useful on workstations
// where a plaintext env file is not acceptable.
type Keyring struct {
	service string
}

// NewKeyring creates a keyring backend. All credential types share one
// service name; the type ID is the account key.
func NewKeyring(service string) *Keyring {
	return &Keyring{service: service}
}

// Name implements Store.
func (k *Keyring) Name() string {
	return "keyring:" + k.service
}

// Read implements Store.
func (k *Keyring) Read(_ context.Context, typeID string) (string, error) {
	value, err := keyring.Get(k.service, typeID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("keyring get %s: %w", typeID, err)
	}
	return value, nil
}

// Apply implements Store. The previous value is copied to a backup entry
// before the overwrite so an operator can recover it by hand; the keychain
// itself replaces entries atomically, so a failed Set leaves the current
// entry intact.
func (k *Keyring) Apply(_ context.Context, typeID, value string) error {
	prev, err := keyring.Get(k.service, typeID)
	if err == nil && prev != "" {
		if err := keyring.Set(k.service, typeID+".backup", prev); err != nil {
			return ckerrors.StorageError{TypeID: typeID, Err: fmt.Errorf("keyring backup %s: %w", typeID, err)}
		}
	} else if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return ckerrors.StorageError{TypeID: typeID, Err: fmt.Errorf("keyring get %s: %w", typeID, err)}
	}

	if err := keyring.Set(k.service, typeID, value); err != nil {
		return ckerrors.StorageError{TypeID: typeID, Err: fmt.Errorf("keyring set %s: %w", typeID, err)}
	}
	return nil
}
