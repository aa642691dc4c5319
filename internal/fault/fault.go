// Package fault defines the failure taxonomy shared by the linking, syncing,
// and ledger services. Every service error carries a Kind that callers use to
// choose a response, plus a stable operation.reason code for logs.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that must pick a distinct response.
type Kind int

const (
	// KindUnknown covers failures that were not classified at the source.
	KindUnknown Kind = iota
	// KindNotFound indicates a referenced entity is absent.
	KindNotFound
	// KindConflict indicates an invariant would be violated by the request.
	KindConflict
	// KindValidation indicates malformed or missing input, rejected before storage.
	KindValidation
	// KindUpstream indicates a storage or downstream call failed; the whole
	// operation was rolled back and may be retried.
	KindUpstream
	// KindUnauthorized indicates a caller credential mismatch.
	KindUnauthorized
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is the concrete failure type returned by services.
type Error struct {
	kind Kind
	code string
	err  error
}

// New builds an Error with an operation.reason code and an optional cause.
func New(kind Kind, operation, reason string, cause error) *Error {
	return &Error{
		kind: kind,
		code: fmt.Sprintf("%s.%s", operation, reason),
		err:  cause,
	}
}

// Error renders the code and the wrapped cause when present.
func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the stable operation.reason identifier.
func (e *Error) Code() string {
	return e.code
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// KindOf extracts the Kind from an error chain, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind()
	}
	return KindUnknown
}
