// Package store persists rotated credential values. The env-file backend
// is the primary target; keyring and redis backends cover workstation and
// shared-cache deployments with the same Apply contract.
package store

import "context"

// Store writes an accepted credential value to its backing location.
// Apply must either fully replace the previous value or leave it intact;
// a partial write with no restore is reported as fatal by the caller.
type Store interface {
	// Name identifies the backend in logs and audit records.
	Name() string

	// Read returns the current value for the credential type, or an
	// empty string when none is stored.
	Read(ctx context.Context, typeID string) (string, error)

	// Apply replaces the stored value for the credential type.
	Apply(ctx context.Context, typeID, value string) error
}
