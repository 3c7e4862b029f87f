package util

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		field    string
		message  string
		cause    error
		expected string
	}{
		{
			name:     "with field",
			field:    "admission.tiers.anonymous.limit",
			message:  "must be greater than 0",
			expected: "config error at admission.tiers.anonymous.limit: must be greater than 0",
		},
		{
			name:     "without field",
			message:  "empty document",
			expected: "config error: empty document",
		},
		{
			name:     "with cause",
			field:    "redis.address",
			message:  "unreachable",
			cause:    errors.New("dial tcp: refused"),
			expected: "config error at redis.address: unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var err *ConfigError
			if tt.cause != nil {
				err = NewConfigErrorWithCause(tt.field, tt.message, tt.cause)
			} else {
				err = NewConfigError(tt.field, tt.message)
			}

			assert.Equal(t, tt.expected, err.Error())
			assert.Equal(t, tt.cause, err.Unwrap())
			assert.ErrorIs(t, err, ErrConfigInvalid)
		})
	}
}

func TestConfigError_IsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := fmt.Errorf("loading: %w", NewConfigErrorWithCause("x", "bad", cause))

	assert.ErrorIs(t, err, cause)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "x", cfgErr.Field)
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *StoreError
		expected string
	}{
		{
			name:     "with key and cause",
			err:      NewStoreError("increment", "Production:ip:1.2.3.4", time.Millisecond, errors.New("i/o timeout")),
			expected: "store increment failed for key Production:ip:1.2.3.4: i/o timeout",
		},
		{
			name:     "without key",
			err:      NewStoreError("ping", "", 0, nil),
			expected: "store ping failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrStoreUnavailable)
			assert.True(t, IsStoreFailure(tt.err))
		})
	}
}

func TestStoreError_UnwrapsContextErrors(t *testing.T) {
	t.Parallel()

	err := NewStoreError("increment", "k", time.Second, context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsStoreFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "unrelated", err: errors.New("other"), expected: false},
		{name: "unavailable", err: ErrStoreUnavailable, expected: true},
		{name: "timeout wrapped", err: fmt.Errorf("call: %w", ErrStoreTimeout), expected: true},
		{name: "config", err: ErrConfigInvalid, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsStoreFailure(tt.err))
		})
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, WrapError(nil, "ctx"))

	base := errors.New("base")
	wrapped := WrapError(base, "ctx")
	assert.EqualError(t, wrapped, "ctx: base")
	assert.ErrorIs(t, wrapped, base)
}
