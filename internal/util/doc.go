// Package util holds the error conventions shared by the gateway packages.
//
// Sentinel errors (ErrStoreUnavailable, ErrConfigInvalid, ...) are checked
// with errors.Is. Structured types (ConfigError, StoreError) carry context
// and implement Error, Unwrap and Is. Ad-hoc context is added with
// fmt.Errorf and %w.
package util
