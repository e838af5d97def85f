// Package fault defines the error taxonomy shared by the engine and the
// transport layer. Every public engine operation either succeeds or returns
// one of these kinds; persistence failures pass through untouched.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a fault.
type Kind string

const (
	// Validation marks caller-fixable malformed input.
	Validation Kind = "validation"

	// Authorization marks a visibility or role denial. Messages carry a
	// generic denial, never whether the entity exists.
	Authorization Kind = "authorization"

	// Precondition marks a denied state transition: incomplete
	// dependencies, missing proof token, or a failed geofence check.
	Precondition Kind = "precondition"

	// NotFound marks an absent entity. An org-scope mismatch is reported
	// identically to avoid cross-tenant existence leakage.
	NotFound Kind = "not_found"

	// Conflict marks a lost optimistic-concurrency race; callers retry.
	Conflict Kind = "conflict"
)

// Error is a categorized fault with optional structured details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches one detail pair and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// KindOf returns the fault kind of err, or "" for non-fault errors,
// unwrapping as needed.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err is a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
