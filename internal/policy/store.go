package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	ckerrors "github.com/systmms/credkeeper/internal/errors"
)

const metadataFile = "metadata.json"

// Store holds the registered policies and the per-type credential records.
// Records are persisted as a single JSON document; every write goes through
// a temp file and rename so concurrent readers never observe a half-written
// record.
type Store struct {
	dataDir  string
	policies map[string]CredentialPolicy

	mu      sync.RWMutex
	records map[string]*CredentialRecord

	// now is swappable for tests
	now func() time.Time
}

// NewStore creates a policy store rooted at dataDir with the given policies.
func NewStore(dataDir string, policies []CredentialPolicy) (*Store, error) {
	byType := make(map[string]CredentialPolicy, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byType[p.TypeID]; dup {
			return nil, fmt.Errorf("duplicate policy for type '%s'", p.TypeID)
		}
		byType[p.TypeID] = p
	}

	s := &Store{
		dataDir:  dataDir,
		policies: byType,
		records:  make(map[string]*CredentialRecord),
		now:      time.Now,
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetClock overrides the store's time source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Policy returns the registered policy for typeID.
func (s *Store) Policy(typeID string) (CredentialPolicy, error) {
	p, ok := s.policies[typeID]
	if !ok {
		return CredentialPolicy{}, ckerrors.UnknownTypeError{TypeID: typeID}
	}
	return p, nil
}

// Policies returns all registered policies, ordered by type id.
func (s *Store) Policies() []CredentialPolicy {
	out := make([]CredentialPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out
}

// Record returns the credential record for typeID, initializing one on
// first use: created and last-rotated now, expiry one interval out.
func (s *Store) Record(typeID string) (CredentialRecord, error) {
	p, err := s.Policy(typeID)
	if err != nil {
		return CredentialRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[typeID]; ok {
		return *rec, nil
	}

	now := s.now()
	rec := &CredentialRecord{
		TypeID:        typeID,
		CreatedAt:     now,
		LastRotatedAt: now,
		ExpiresAt:     now.Add(p.Interval()),
	}
	s.records[typeID] = rec
	if err := s.saveLocked(); err != nil {
		delete(s.records, typeID)
		return CredentialRecord{}, err
	}
	return *rec, nil
}

// PeekRecord is Record without the first-use persistence: a missing record
// is derived in memory and never saved. Scan paths read through this so a
// report against a read-only data directory still works.
func (s *Store) PeekRecord(typeID string) (CredentialRecord, error) {
	p, err := s.Policy(typeID)
	if err != nil {
		return CredentialRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[typeID]; ok {
		return *rec, nil
	}

	now := s.now()
	return CredentialRecord{
		TypeID:        typeID,
		CreatedAt:     now,
		LastRotatedAt: now,
		ExpiresAt:     now.Add(p.Interval()),
	}, nil
}

// UpdateRecord applies the result of an accepted rotation: the new masked
// fingerprint, the rotation timestamp, a recomputed expiry, and an
// incremented rotation count.
func (s *Store) UpdateRecord(typeID, fingerprint string, rotatedAt time.Time) error {
	p, err := s.Policy(typeID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[typeID]
	if !ok {
		rec = &CredentialRecord{TypeID: typeID, CreatedAt: rotatedAt}
		s.records[typeID] = rec
	}

	prev := *rec
	rec.LastRotatedAt = rotatedAt
	rec.ExpiresAt = rotatedAt.Add(p.Interval())
	rec.Fingerprint = fingerprint
	rec.RotationCount++

	if err := s.saveLocked(); err != nil {
		*rec = prev
		return err
	}
	return nil
}

func (s *Store) metadataPath() string {
	return filepath.Join(s.dataDir, metadataFile)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.metadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read credential metadata: %w", err)
	}

	var records map[string]*CredentialRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse credential metadata: %w", err)
	}
	s.records = records
	if s.records == nil {
		s.records = make(map[string]*CredentialRecord)
	}
	return nil
}

// saveLocked persists the records. Callers must hold s.mu.
func (s *Store) saveLocked() error {
	if err := os.MkdirAll(s.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential metadata: %w", err)
	}

	tmp, err := os.CreateTemp(s.dataDir, metadataFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write credential metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp metadata file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set metadata permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.metadataPath()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace credential metadata: %w", err)
	}
	return nil
}
