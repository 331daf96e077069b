package model

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound is returned when an account id is not in the registry.
var ErrAccountNotFound = errors.New("account not found")

// ErrNoPrimary is returned when no account is flagged primary.
var ErrNoPrimary = errors.New("no primary account found")

// ErrMultiplePrimaries is a hard configuration error: the model supports
// exactly one replication source.
var ErrMultiplePrimaries = errors.New("multiple accounts flagged primary")

// ConfigLoadError signals missing or malformed persisted configuration.
// Callers recover by continuing with an empty/default set.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("config load %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// PersistenceError signals a config write failure. The in-memory state
// stays authoritative for the process lifetime.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AuthError signals an invalid or expired token during session exchange.
// The account's session stays unset; the caller decides what to do.
type AuthError struct {
	AccountID string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.AccountID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// OrderError signals a rejected placement or a transport failure while
// placing an order. It drives the engine's bounded retry.
type OrderError struct {
	AccountID string
	Reason    string
	Err       error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order %s: %s: %v", e.AccountID, e.Reason, e.Err)
	}
	return fmt.Sprintf("order %s: %s", e.AccountID, e.Reason)
}

func (e *OrderError) Unwrap() error { return e.Err }
