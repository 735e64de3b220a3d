// Package secure wraps memguard to keep candidate secrets encrypted in
// memory between generation and persistence. Plaintext only exists inside
// a locked buffer for the duration of a WithValue callback.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Candidate holds a generated secret in an encrypted enclave. The enclave
// encrypts the value at rest in memory and mlocks the backing pages where
// the platform allows it.
type Candidate struct {
	enclave *memguard.Enclave

	mu        sync.RWMutex
	destroyed bool
}

// NewCandidate seals the given secret into a protected buffer. The input
// slice is wiped by memguard as part of enclave construction; callers must
// not reuse it.
func NewCandidate(value []byte) *Candidate {
	return &Candidate{enclave: memguard.NewEnclave(value)}
}

// WithValue decrypts the candidate, invokes fn with the plaintext, and
// wipes the plaintext again before returning. The callback must not retain
// the slice.
func (c *Candidate) WithValue(fn func(value []byte) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.destroyed || c.enclave == nil {
		return fn(nil)
	}

	locked, err := c.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Destroy marks the candidate as spent. Idempotent; subsequent WithValue
// calls see an empty value.
func (c *Candidate) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return
	}
	c.enclave = nil
	c.destroyed = true
}
