package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a core failure. Every non-internal error surfaced by
// the engine carries a stable kind tag suitable for programmatic handling;
// transports map kinds onto their own status vocabulary.
type ErrorKind string

const (
	// KindValidation marks malformed input: bad timestamps, label mismatches
	// on an alias, dangling envelope aliases, negative-duration edges.
	KindValidation ErrorKind = "validation"
	// KindNotFound marks references to a system id or tenant that does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindAlreadyExists marks tenant creation collisions.
	KindAlreadyExists ErrorKind = "already_exists"
	// KindTenantIsolation marks a caller tenant that differs from the tenant
	// resolved from the request. Fatal, never retried.
	KindTenantIsolation ErrorKind = "tenant_isolation_violation"
	// KindBackend marks underlying store I/O failures. Retriable at the
	// caller's discretion; the core itself never retries store operations.
	KindBackend ErrorKind = "backend"
	// KindPartialCommit marks a multi-step merge that left a
	// non-transactional backend in a mixed state.
	KindPartialCommit ErrorKind = "partial_commit"
	// KindPartialDelete marks a tenant purge that removed only part of the
	// tenant's rows. The error carries a continuation token.
	KindPartialDelete ErrorKind = "partial_delete"
	// KindInternal marks contract violations that should not occur.
	KindInternal ErrorKind = "internal"
)

// Error is the kind-tagged error surfaced across the core.
type Error struct {
	Kind    ErrorKind
	Message string
	// Token carries a continuation token (partial delete) or an idempotency
	// key (partial commit) the caller can replay.
	Token string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is works against kind sentinels.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind && (te.Message == "" || te.Message == e.Message)
	}
	return false
}

// NewError builds a kind-tagged error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind to an underlying error.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewValidationError builds a KindValidation error.
func NewValidationError(format string, args ...any) *Error {
	return NewError(KindValidation, format, args...)
}

// NewNotFoundError builds a KindNotFound error.
func NewNotFoundError(format string, args ...any) *Error {
	return NewError(KindNotFound, format, args...)
}

// NewBackendError wraps an I/O failure from an underlying store.
func NewBackendError(err error, format string, args ...any) *Error {
	return WrapError(KindBackend, err, format, args...)
}

// NewInternalError builds a KindInternal error.
func NewInternalError(format string, args ...any) *Error {
	return NewError(KindInternal, format, args...)
}

// KindOf extracts the kind from err, or KindInternal when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
