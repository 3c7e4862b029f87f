package util

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across packages.
var (
	ErrStoreUnavailable = errors.New("counter store unavailable")
	ErrStoreTimeout     = errors.New("counter store timeout")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrPolicyInvalid    = errors.New("invalid rate limit policy")
)

// ConfigError describes a configuration problem at a specific path.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrConfigInvalid, another ConfigError or the cause.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError wrapping cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// StoreError is returned by counter stores when an operation fails.
type StoreError struct {
	Operation string
	Key       string
	Elapsed   time.Duration
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store %s failed", e.Operation)
	if e.Key != "" {
		msg += " for key " + e.Key
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is matches ErrStoreUnavailable for every store error so callers can
// treat any store failure uniformly.
func (e *StoreError) Is(target error) bool {
	if target == ErrStoreUnavailable {
		return true
	}
	_, ok := target.(*StoreError)
	return ok
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation, key string, elapsed time.Duration, cause error) *StoreError {
	return &StoreError{Operation: operation, Key: key, Elapsed: elapsed, Cause: cause}
}

// WrapError wraps err with message. Nil stays nil.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsStoreFailure reports whether err means the counter store could not
// answer, including timeouts of the store call.
func IsStoreFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrStoreTimeout)
}
