// Package types holds the option structs, layer capability interface, and
// error taxonomy shared by every storage layer and the engine that
// orchestrates them.
package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so callers and the engine's propagation
// policy (see engine.go) can tell fatal errors from ones that degrade to a
// miss.
type ErrorKind int

const (
	// ErrNotConnectedKind means the engine has not completed connect(), or
	// has been disconnected.
	ErrNotConnectedKind ErrorKind = iota
	// ErrL3WriteKind is fatal on the default set/increment path.
	ErrL3WriteKind
	// ErrL3ReadKind is non-fatal; the caller falls back to a miss.
	ErrL3ReadKind
	// ErrL2TransientKind is non-fatal; treated as a miss or a best-effort
	// fan-out failure.
	ErrL2TransientKind
	// ErrL1InternalKind is non-fatal; treated as a miss.
	ErrL1InternalKind
	// ErrSchemaInvalidIdentifierKind is fatal during schema setup.
	ErrSchemaInvalidIdentifierKind
	// ErrSchemaSetupKind is fatal during schema setup.
	ErrSchemaSetupKind
	// ErrBackupIOKind is fatal to the backup operation only.
	ErrBackupIOKind
	// ErrRestoreFormatKind is fatal to the restore operation only.
	ErrRestoreFormatKind
	// ErrSerializationKind is a per-entry failure.
	ErrSerializationKind
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNotConnectedKind:
		return "not_connected"
	case ErrL3WriteKind:
		return "l3_write"
	case ErrL3ReadKind:
		return "l3_read"
	case ErrL2TransientKind:
		return "l2_transient"
	case ErrL1InternalKind:
		return "l1_internal"
	case ErrSchemaInvalidIdentifierKind:
		return "schema_invalid_identifier"
	case ErrSchemaSetupKind:
		return "schema_setup"
	case ErrBackupIOKind:
		return "backup_io"
	case ErrRestoreFormatKind:
		return "restore_format"
	case ErrSerializationKind:
		return "serialization"
	default:
		return "unknown"
	}
}

// Error wraps a cause with an ErrorKind and an optional layer/key for
// diagnostics. It supports errors.Is/As via Unwrap.
type Error struct {
	Kind  ErrorKind
	Layer string
	Key   string
	Cause error
}

func (e *Error) Error() string {
	if e.Key != "" && e.Layer != "" {
		return fmt.Sprintf("%s: %s[%s]: %v", e.Kind, e.Layer, e.Key, e.Cause)
	}
	if e.Layer != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Layer, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error with the given kind.
func NewError(kind ErrorKind, layer, key string, cause error) *Error {
	return &Error{Kind: kind, Layer: layer, Key: key, Cause: cause}
}

// Is reports whether err carries the given kind, unwrapping through
// standard wrapping chains.
func Is(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrNotConnected is a sentinel for the engine's state-machine guard.
var ErrNotConnected = NewError(ErrNotConnectedKind, "engine", "", errors.New("engine is not connected"))
