// Package exarerr defines the error kinds surfaced by the
// collection engine and the wire protocol, so that callers can
// distinguish them with errors.As instead of string matching.
package exarerr

import "fmt"

// Kind classifies an error for reporting across the wire as
// Error\t<kind>[\t<subkind>]\t<detail>.
type Kind string

const (
	// IoError covers file open/read/write/flush/rename failures.
	// Fatal to the affected operation; subscriptions that hit it
	// are closed.
	IoError Kind = "IoError"
	// ParseError covers a malformed log line or malformed request.
	// The operation fails and, for a subscription, it closes.
	ParseError Kind = "ParseError"
	// ValidationError covers an event with no tags, event data
	// containing a tab or newline, or a query with negative
	// fields. No state changes.
	ValidationError Kind = "ValidationError"
	// SubscriptionError covers a full send buffer or a broken
	// send endpoint. Only the affected subscription is removed.
	SubscriptionError Kind = "SubscriptionError"
	// AuthenticationError is surfaced by the wire handshake, not
	// by the core engine.
	AuthenticationError Kind = "AuthenticationError"
)

// Error is a Kind wrapping an underlying cause. Use errors.As to
// recover the Kind from an error returned by this module without
// matching on error strings.
type Error struct {
	Kind    Kind
	Sub     string // optional subkind, e.g. a parse position
	Detail  string
	Wrapped error
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: err.Error(), Wrapped: err}
}

func (e *Error) Error() string {
	if e.Sub != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Sub, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is lets errors.Is(err, New(IoError, "")) match any *Error of the
// same Kind by comparing kinds rather than identity; a target that is
// not an *Error never matches.
func (e *Error) Is(target error) bool {
	k, ok := target.(*Error)
	if !ok {
		return false
	}
	return k.Kind == e.Kind
}
