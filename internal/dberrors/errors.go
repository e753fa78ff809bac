// Package dberrors defines the typed error taxonomy shared by the driver,
// pool, and collection runtime. Every error surfaced across a package
// boundary carries a machine-readable Kind plus the human-readable message.
package dberrors

import (
	"database/sql"
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling. Callers should use
// errors.Is/errors.As rather than string matching on Error().
type Kind string

const (
	KindValidation       Kind = "validation"
	KindUniqueConstraint Kind = "unique_constraint"
	KindNotFound         Kind = "not_found"
	KindVersionMismatch  Kind = "version_mismatch"
	KindDatabase         Kind = "database"
	KindDriverClosed     Kind = "driver_closed"
	KindPoolClosing      Kind = "pool_closing"
	KindSyncNotSupported Kind = "sync_not_supported"
	KindAcquireTimeout   Kind = "acquire_timeout"
	KindCreateTimeout    Kind = "create_timeout"
	KindMaxReconnect     Kind = "max_reconnect"
	KindPlugin           Kind = "plugin"
	KindPluginTimeout    Kind = "plugin_timeout"
)

// Error is the concrete error type returned by this module. Fields beyond
// Kind/Op/Err are populated only where the triggering operation makes them
// meaningful (see the per-Kind constructors below).
type Error struct {
	Kind     Kind
	Op       string
	Err      error
	ID       string
	Field    string
	SQL      string
	Expected int
	Actual   int
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUniqueConstraint:
		return fmt.Sprintf("%s: unique constraint violated on field %q (id=%s)", e.Op, e.Field, e.ID)
	case KindVersionMismatch:
		return fmt.Sprintf("%s: version mismatch for id=%s (expected %d, actual %d)", e.Op, e.ID, e.Expected, e.Actual)
	case KindNotFound:
		return fmt.Sprintf("%s: not found (id=%s)", e.Op, e.ID)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Op, e.Err)
		}
		return e.Op
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &dberrors.Error{Kind: dberrors.KindX}) match by Kind,
// in addition to the usual sentinel comparisons on wrapped causes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return true
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func UniqueConstraint(op, field, id string) *Error {
	return &Error{Kind: KindUniqueConstraint, Op: op, Field: field, ID: id,
		Err: fmt.Errorf("unique constraint violated on %q", field)}
}

func NotFound(op, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, ID: id, Err: sql.ErrNoRows}
}

func VersionMismatch(op, id string, expected, actual int) *Error {
	return &Error{Kind: KindVersionMismatch, Op: op, ID: id, Expected: expected, Actual: actual,
		Err: fmt.Errorf("stale version")}
}

func Database(op, sqlText string, err error) *Error {
	return &Error{Kind: KindDatabase, Op: op, SQL: sqlText, Err: err}
}

func DriverClosed(op string) *Error {
	return &Error{Kind: KindDriverClosed, Op: op, Err: errors.New("driver is closed")}
}

func PoolClosing(op string) *Error {
	return &Error{Kind: KindPoolClosing, Op: op, Err: errors.New("pool is closing")}
}

func SyncNotSupported(op string) *Error {
	return &Error{Kind: KindSyncNotSupported, Op: op, Err: errors.New("sync variant not supported by this backend")}
}

func AcquireTimeout(op string) *Error {
	return &Error{Kind: KindAcquireTimeout, Op: op, Err: errors.New("timed out acquiring pooled connection")}
}

func CreateTimeout(op string) *Error {
	return &Error{Kind: KindCreateTimeout, Op: op, Err: errors.New("timed out creating pooled connection")}
}

func MaxReconnect(op string, attempts int) *Error {
	return &Error{Kind: KindMaxReconnect, Op: op, Err: fmt.Errorf("exhausted %d reconnect attempts", attempts)}
}

func Plugin(op string, err error) *Error {
	return &Error{Kind: KindPlugin, Op: op, Err: err}
}

func PluginTimeout(op string) *Error {
	return &Error{Kind: KindPluginTimeout, Op: op, Err: errors.New("hook execution timed out")}
}

// Wrap maps a raw backend error to the taxonomy above by inspecting its
// text. This is the documented fallback (spec.md Design Notes): targets with
// structured backend error codes should prefer those over pattern matching.
func Wrap(op, sqlText string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound(op, "")
	}
	msg := err.Error()
	if field, ok := uniqueConstraintField(msg); ok {
		return UniqueConstraint(op, field, "")
	}
	if isForeignKeyViolation(msg) {
		return Validation(op, fmt.Errorf("foreign key constraint failed: %w", err))
	}
	return Database(op, sqlText, err)
}

// IsKind reports whether err (or a wrapped cause) carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
