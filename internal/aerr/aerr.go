// Package aerr defines the sentinel error taxonomy shared by every
// AavionDB component so the dispatcher can classify a failure without
// string matching.
package aerr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure from spec §7.
type Kind string

const (
	KindInvalidSlug      Kind = "InvalidSlug"
	KindInvalidReference Kind = "InvalidReference"
	KindInvalidParameter Kind = "InvalidParameter"
	KindInvalidJSON      Kind = "InvalidJSON"
	KindInvalidPreset    Kind = "InvalidPreset"
	KindNotFound         Kind = "NotFound"
	KindScopeDenied      Kind = "ScopeDenied"
	KindInvalidToken     Kind = "InvalidToken"
	KindMissingToken     Kind = "MissingToken"
	KindBootstrapBlocked Kind = "BootstrapNotAllowed"
	KindAPIDisabled      Kind = "ApiDisabled"
	KindRateLimited      Kind = "RateLimited"
	KindSchemaValidation Kind = "SchemaValidation"
	KindInvalidSchemaDoc Kind = "InvalidSchema"
	KindIntegrityFailure Kind = "IntegrityFailure"
	KindStorageFailure   Kind = "StorageFailure"
	KindHandlerException Kind = "HandlerException"
	KindCommandException Kind = "CommandException"
	KindEncoding         Kind = "EncodingError"
)

// Error is the concrete error type carried across every package
// boundary. It wraps an underlying cause (if any) and records a Kind so
// callers can branch with errors.As without parsing messages.
type Error struct {
	Kind    Kind
	Message string
	Path    string // offending field path, when applicable (schema validation)
	Reason  string // structured failure reason (atomic writer, etc.)
	Cause   error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path=%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, aerr.New(KindNotFound, "")) style matching on
// Kind alone.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithPath attaches an offending field path (used by schema validation).
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithReason attaches a structured reason (used by the atomic writer).
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// KindOf extracts the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a Kind to the HTTP status code spec §6.2 assigns it.
// Transport collaborators (out of scope) consult this helper.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidSlug, KindInvalidReference, KindInvalidParameter,
		KindInvalidJSON, KindInvalidPreset, KindSchemaValidation, KindInvalidSchemaDoc, KindNotFound:
		return 400
	case KindMissingToken, KindInvalidToken:
		return 401
	case KindScopeDenied, KindBootstrapBlocked:
		return 403
	case KindRateLimited:
		return 429
	case KindAPIDisabled:
		return 503
	case KindHandlerException, KindCommandException, KindStorageFailure, KindIntegrityFailure:
		return 500
	default:
		return 500
	}
}
