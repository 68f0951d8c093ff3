package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error for transport mapping
type Kind string

const (
	KindValidation       Kind = "validation"
	KindState            Kind = "state"
	KindOwnership        Kind = "ownership"
	KindNotFound         Kind = "not_found"
	KindAuthentication   Kind = "authentication"
	KindAuthorization    Kind = "authorization"
	KindJobAuthorization Kind = "job_authorization"
	KindContract         Kind = "contract"
	KindMaterialization  Kind = "materialization"
	KindInternal         Kind = "internal"
)

// Error is the closed error sum shared by every MoonMind surface. The REST
// envelope and the MCP dispatcher both derive their responses from it.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error without changing kind or code
func (e *Error) WithCause(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

// NewValidation creates a validation error (HTTP 422, or 413 for oversized artifacts)
func NewValidation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// NewValidationf creates a validation error with a formatted message
func NewValidationf(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewState creates a state-conflict error (HTTP 409)
func NewState(code, message string) *Error {
	return &Error{Kind: KindState, Code: code, Message: message}
}

// NewOwnership creates a claim-ownership error (HTTP 409)
func NewOwnership(message string) *Error {
	return &Error{Kind: KindOwnership, Code: CodeJobOwnershipMismatch, Message: message}
}

// NewNotFound creates a not-found error (HTTP 404)
func NewNotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// NewAuthentication creates an authentication error (HTTP 401)
func NewAuthentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Code: CodeWorkerAuthFailed, Message: message}
}

// NewAuthorization creates an authorization error (HTTP 403)
func NewAuthorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeWorkerNotAuthorized, Message: message}
}

// NewJobAuthorization creates a task-run access error (HTTP 403). Kept
// distinct from NewAuthorization so callers can tell "wrong worker token"
// from "user is not the creator/requester of this run".
func NewJobAuthorization(message string) *Error {
	return &Error{Kind: KindJobAuthorization, Code: CodeJobAccessDenied, Message: message}
}

// NewPauseForbidden rejects pause control from a non-operator (HTTP 403)
func NewPauseForbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeWorkerPauseForbidden, Message: message}
}

// NewContract creates a payload-contract error (HTTP 422)
func NewContract(code, message string) *Error {
	return &Error{Kind: KindContract, Code: code, Message: message}
}

// NewContractf creates a payload-contract error with a formatted message
func NewContractf(code, format string, args ...any) *Error {
	return &Error{Kind: KindContract, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewMaterialization creates a skill-materialization error (HTTP 422). The
// code is surfaced verbatim to callers.
func NewMaterialization(code, message string) *Error {
	return &Error{Kind: KindMaterialization, Code: code, Message: message}
}

// NewInternal wraps an unexpected failure (HTTP 500)
func NewInternal(cause error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternalError, Message: "internal error", cause: cause}
}

func is(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func IsValidation(err error) bool       { return is(err, KindValidation) }
func IsState(err error) bool            { return is(err, KindState) }
func IsOwnership(err error) bool        { return is(err, KindOwnership) }
func IsNotFound(err error) bool         { return is(err, KindNotFound) }
func IsAuthentication(err error) bool   { return is(err, KindAuthentication) }
func IsAuthorization(err error) bool    { return is(err, KindAuthorization) }
func IsJobAuthorization(err error) bool { return is(err, KindJobAuthorization) }
func IsContract(err error) bool         { return is(err, KindContract) }
func IsMaterialization(err error) bool  { return is(err, KindMaterialization) }

// CodeOf extracts the wire code, or internal_error for foreign errors
func CodeOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternalError
}

// MessageOf extracts the caller-facing message, hiding foreign error detail
func MessageOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps any error onto its normative status code. This is the
// single mapping shared by the REST envelope and the MCP dispatcher.
func HTTPStatus(err error) int {
	var e *Error
	if !stderrors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation, KindContract, KindMaterialization:
		if e.Code == CodeArtifactTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusUnprocessableEntity
	case KindState, KindOwnership:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization, KindJobAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Stdlib passthroughs so callers never need a second errors import.

func New(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
