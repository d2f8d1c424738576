// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the typed error taxonomy shared by the engine and all
// drivers.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfig is the sentinel matched by errors.Is for every configuration
// error: missing adapter, unbound connection, an operator or option a
// backend cannot express. Configuration errors fail fast, before any I/O.
var ErrConfig = errors.New("configuration error")

// ConfigError wraps a human-readable description of an engine misuse.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string {
	return "anvil: " + e.Detail
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Detail: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that FindOrFail/FirstOrFail matched no row.
// It carries the entity table and the requested key(s).
type NotFoundError struct {
	Entity string
	Keys   []any
}

func (e *NotFoundError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("anvil: no results for entity %q", e.Entity)
	}
	return fmt.Sprintf("anvil: no results for entity %q with keys %v", e.Entity, e.Keys)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// MassAssignmentError enumerates the keys a strict fill rejected because
// they violate the entity's fillable/guarded policy. The non-strict Fill
// path drops offending keys silently instead.
type MassAssignmentError struct {
	Entity string
	Keys   []string
}

func (e *MassAssignmentError) Error() string {
	return fmt.Sprintf("anvil: mass assignment of guarded keys [%s] on entity %q",
		strings.Join(e.Keys, ", "), e.Entity)
}

// HookCancelledError reports that a lifecycle hook vetoed the in-flight
// operation. Prior state is left untouched.
type HookCancelledError struct {
	Stage Stage
}

func (e *HookCancelledError) Error() string {
	return fmt.Sprintf("anvil: operation cancelled by %s hook", e.Stage)
}

// ConnectionError wraps a backend connectivity failure. The backend cause
// is always preserved and reachable through errors.Unwrap.
type ConnectionError struct {
	Connection string
	Cause      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("anvil: connection %q failed: %v", e.Connection, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ErrConnectionFailed marks a connection whose reconnection attempts are
// exhausted. All calls fail fast with this sentinel until an explicit
// Reconnect succeeds.
var ErrConnectionFailed = errors.New("anvil: connection marked failed; explicit reconnect required")
