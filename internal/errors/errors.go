package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration problem with the field that caused it
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

// UnknownTypeError indicates a credential type that is not registered in the
// policy store. A caller error, never retried.
type UnknownTypeError struct {
	TypeID string
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown credential type '%s'", e.TypeID)
}

// RotationInProgressError indicates another rotation for the same credential
// type is in flight. Transient; the caller may retry later.
type RotationInProgressError struct {
	TypeID string
}

func (e RotationInProgressError) Error() string {
	return fmt.Sprintf("rotation already in progress for credential type '%s'", e.TypeID)
}

// Rejection reasons for ValidationError.
const (
	ReasonWeak     = "weak"
	ReasonBreached = "breached"
)

// ValidationError indicates a candidate secret was rejected. Terminal for the
// attempt; the old credential remains authoritative.
type ValidationError struct {
	TypeID string
	Reason string // weak or breached
	Issues []string
}

func (e ValidationError) Error() string {
	msg := fmt.Sprintf("candidate for '%s' rejected: %s", e.TypeID, e.Reason)
	if len(e.Issues) > 0 {
		msg += " (" + strings.Join(e.Issues, "; ") + ")"
	}
	return msg
}

// SecondFactorError indicates the second-factor hook denied a rotation.
// Security-relevant; audited at elevated severity.
type SecondFactorError struct {
	TypeID    string
	Operation string
}

func (e SecondFactorError) Error() string {
	return fmt.Sprintf("second-factor verification denied for %s on '%s'", e.Operation, e.TypeID)
}

// QuarantinedError indicates a credential type is blocked after a storage
// failure whose backup restore also failed. Only an operator may clear it.
type QuarantinedError struct {
	TypeID string
	Reason string
}

func (e QuarantinedError) Error() string {
	msg := fmt.Sprintf("credential type '%s' is quarantined", e.TypeID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StorageError indicates the backing store could not be updated. When
// RestoreFailed is set the automatic backup restore also failed and the type
// must not be rotated again until an operator intervenes.
type StorageError struct {
	TypeID        string
	RestoreFailed bool
	Err           error
}

func (e StorageError) Error() string {
	msg := fmt.Sprintf("storage update failed for '%s'", e.TypeID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.RestoreFailed {
		msg += " (backup restore also failed, operator intervention required)"
	}
	return msg
}

func (e StorageError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err requires halting automated rotation for the
// affected type. Only a storage failure whose restore also failed qualifies.
func IsFatal(err error) bool {
	var se StorageError
	if errors.As(err, &se) {
		return se.RestoreFailed
	}
	return false
}

// IsTransient reports whether err is safe to retry later.
func IsTransient(err error) bool {
	var rip RotationInProgressError
	return errors.As(err, &rip)
}
