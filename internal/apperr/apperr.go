// Package apperr defines the error taxonomy shared by the control plane.
// Services return *Error values; the HTTP boundary maps Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Machine-readable codes. Gate and workflow codes are part of the public contract.
const (
	CodeUnauthenticated      = "UNAUTHENTICATED"
	CodeForbidden            = "FORBIDDEN"
	CodeTenantMismatch       = "TENANT_MISMATCH"
	CodeSendGateBlocked      = "SEND_GATE_BLOCKED"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeAlreadyProcessed     = "ALREADY_PROCESSED"
	CodeDraftNotApproved     = "DRAFT_NOT_APPROVED"
	CodeFlagsNotAcknowledged = "FLAGS_NOT_ACKNOWLEDGED"
	CodeFlagLegalConclusion  = "FLAG_LEGAL_CONCLUSION"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL"
)

// Error is a typed, classifiable failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) *Error {
	return newError(KindAuthentication, CodeUnauthenticated, format, args...)
}

func Denied(code, format string, args ...any) *Error {
	if code == "" {
		code = CodeForbidden
	}
	return newError(KindAuthorization, code, format, args...)
}

func Invalid(code, format string, args ...any) *Error {
	if code == "" {
		code = CodeValidationFailed
	}
	return newError(KindValidation, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return newError(KindConflict, code, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, CodeNotFound, format, args...)
}

// Internal wraps an infrastructure failure. The message is safe to show callers.
func Internal(err error, format string, args ...any) *Error {
	e := newError(KindInternal, CodeInternal, format, args...)
	e.Err = err
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err; unknown errors are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the machine-readable code of err.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// IsDenial reports whether err is an authorization failure that must be audited.
func IsDenial(err error) bool {
	return KindOf(err) == KindAuthorization
}
