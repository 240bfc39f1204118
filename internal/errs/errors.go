// Package errs provides the unified error type used across all of ExprDB.
//
// Every subsystem (ingest, schema, query, database, filestore, …) wraps its
// native errors into *errs.Error before returning them to callers. Callers
// use the Is* predicates to handle errors without importing driver-specific
// packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In a handler, check error kind:
//	if errs.IsResourceLimit(err) {
//	    http.Error(w, "query too large", http.StatusBadRequest)
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no object, no bucket
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure

	ErrKindMalformedRecord   // field count disagrees with the header
	ErrKindEncoding          // unreadable byte sequence in an input file
	ErrKindSchemaConsistency // cross-table invariant violated at ingest
	ErrKindDuplicateTable    // table name already registered in the catalog
	ErrKindResourceLimit     // query exceeds a fixed ceiling
	ErrKindUnknownColumn     // qualified column not in the catalog
	ErrKindTypeMismatch      // operator or literal incompatible with column type
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindMalformedRecord:
		return "malformed_record"
	case ErrKindEncoding:
		return "encoding"
	case ErrKindSchemaConsistency:
		return "schema_consistency"
	case ErrKindDuplicateTable:
		return "duplicate_table"
	case ErrKindResourceLimit:
		return "resource_limit"
	case ErrKindUnknownColumn:
		return "unknown_column"
	case ErrKindTypeMismatch:
		return "type_mismatch"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all ExprDB subsystems.
// Table and Column are optional diagnostic context.
type Error struct {
	Kind    ErrKind
	Message string
	Table   string
	Column  string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Kind, e.Message)
	if e.Table != "" || e.Column != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Table)
		if e.Column != "" {
			sb.WriteString(".")
			sb.WriteString(e.Column)
		}
		sb.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Ensure wraps cause with kind and msg unless it already carries an *Error,
// in which case the existing classification is kept.
func Ensure(kind ErrKind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return Wrap(kind, msg, cause)
}

// OnColumn attaches table/column context and returns the receiver.
func (e *Error) OnColumn(table, column string) *Error {
	e.Table = table
	e.Column = column
	return e
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing object, unknown table/bucket, …).
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure
// (SQL execution error, storage I/O error, …).
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

func IsMalformedRecord(err error) bool   { return kindOf(err) == ErrKindMalformedRecord }
func IsEncoding(err error) bool          { return kindOf(err) == ErrKindEncoding }
func IsSchemaConsistency(err error) bool { return kindOf(err) == ErrKindSchemaConsistency }
func IsDuplicateTable(err error) bool    { return kindOf(err) == ErrKindDuplicateTable }
func IsResourceLimit(err error) bool     { return kindOf(err) == ErrKindResourceLimit }
func IsUnknownColumn(err error) bool     { return kindOf(err) == ErrKindUnknownColumn }
func IsTypeMismatch(err error) bool      { return kindOf(err) == ErrKindTypeMismatch }

// IsStorage reports whether err originated in the storage backend.
// Such failures are never retried internally; callers may retry the request.
func IsStorage(err error) bool {
	switch kindOf(err) {
	case ErrKindConnectionFailed, ErrKindTimeout, ErrKindQueryFailed, ErrKindPermissionDenied:
		return true
	}
	return false
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
