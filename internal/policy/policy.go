package policy

import (
	"fmt"
	"time"
)

// ComplexityClass governs which character classes a generated candidate
// draws from and which classes the strength validator requires.
type ComplexityClass string

const (
	// ComplexityNone marks short-lived credentials (session tokens) that
	// are exempt from strength validation.
	ComplexityNone     ComplexityClass = "none"
	ComplexityMedium   ComplexityClass = "medium"
	ComplexityHigh     ComplexityClass = "high"
	ComplexityVeryHigh ComplexityClass = "very_high"
)

// Valid reports whether c is a recognized complexity class.
func (c ComplexityClass) Valid() bool {
	switch c {
	case ComplexityNone, ComplexityMedium, ComplexityHigh, ComplexityVeryHigh:
		return true
	}
	return false
}

// DefaultMinScore is the strength score crucial credential types must reach
// before a rotation is accepted, unless the policy overrides it.
const DefaultMinScore = 70

// CredentialPolicy describes the rotation rules for one credential type.
// Policies are immutable once registered.
type CredentialPolicy struct {
	TypeID               string          `yaml:"type_id" json:"type_id"`
	RotationIntervalDays int             `yaml:"rotation_interval_days" json:"rotation_interval_days"`
	WarningDays          int             `yaml:"warning_days" json:"warning_days"`
	MinLength            int             `yaml:"min_length" json:"min_length"`
	Complexity           ComplexityClass `yaml:"complexity_class" json:"complexity_class"`
	RequiresSecondFactor bool            `yaml:"requires_second_factor,omitempty" json:"requires_second_factor"`

	// Crucial types must additionally reach MinScore even when every
	// composition check passes.
	Crucial  bool `yaml:"crucial,omitempty" json:"crucial,omitempty"`
	MinScore int  `yaml:"min_score,omitempty" json:"min_score,omitempty"`

	// PasswordLike types are checked against the breach corpus.
	PasswordLike bool `yaml:"password_like,omitempty" json:"password_like,omitempty"`
}

// Interval returns the rotation interval as a duration.
func (p CredentialPolicy) Interval() time.Duration {
	return time.Duration(p.RotationIntervalDays) * 24 * time.Hour
}

// RequiredScore returns the minimum strength score for this policy,
// falling back to the default for crucial types with no override.
func (p CredentialPolicy) RequiredScore() int {
	if !p.Crucial {
		return 0
	}
	if p.MinScore > 0 {
		return p.MinScore
	}
	return DefaultMinScore
}

// Validate checks the policy for internally consistent values.
func (p CredentialPolicy) Validate() error {
	if p.TypeID == "" {
		return fmt.Errorf("policy has empty type_id")
	}
	if p.RotationIntervalDays <= 0 {
		return fmt.Errorf("policy %s: rotation_interval_days must be positive", p.TypeID)
	}
	if p.WarningDays <= 0 || p.WarningDays >= p.RotationIntervalDays {
		return fmt.Errorf("policy %s: warning_days must be positive and less than rotation_interval_days", p.TypeID)
	}
	if p.MinLength <= 0 {
		return fmt.Errorf("policy %s: min_length must be positive", p.TypeID)
	}
	if !p.Complexity.Valid() {
		return fmt.Errorf("policy %s: unknown complexity_class '%s'", p.TypeID, p.Complexity)
	}
	return nil
}

// CredentialRecord tracks the mutable lifecycle metadata for one credential
// type. ExpiresAt is always derived from LastRotatedAt plus the policy
// interval; it is never stored independently of a rotation.
type CredentialRecord struct {
	TypeID        string    `json:"type_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastRotatedAt time.Time `json:"last_rotated_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	RotationCount int       `json:"rotation_count"`

	// Fingerprint is the masked display form only, never the raw secret.
	Fingerprint string `json:"fingerprint,omitempty"`
}
