// Package geoerr defines the error taxonomy shared by fetching, validation and
// preparation of geographies.
package geoerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an Error.
type Kind string

// Kinds raised by the fetch pipeline are the first four; the rest are
// reserved for consumers of prepared geometry.
const (
	KindLoad          Kind = "GEOGRAPHY_LOAD_ERROR"
	KindParse         Kind = "GEOGRAPHY_PARSE_ERROR"
	KindSecurity      Kind = "SECURITY_ERROR"
	KindValidation    Kind = "VALIDATION_ERROR"
	KindProjection    Kind = "PROJECTION_ERROR"
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	KindContext       Kind = "CONTEXT_ERROR"
)

// Error is a classified geography error.
type Error struct {
	Timestamp time.Time
	Cause     error
	Details   map[string]any
	Kind      Kind
	Geography string // originating reference, empty for inline data
	Reason    string // machine-readable, e.g. "response_too_large"
	Message   string
}

// Option configures an Error.
type Option func(*Error)

// WithReason sets the machine-readable reason.
func WithReason(reason string) Option {
	return func(e *Error) { e.Reason = reason }
}

// WithMessage sets a human-readable message.
func WithMessage(format string, args ...any) Option {
	return func(e *Error) { e.Message = fmt.Sprintf(format, args...) }
}

// WithDetail attaches a single key/value detail.
func WithDetail(key string, value any) Option {
	return func(e *Error) {
		if e.Details == nil {
			e.Details = make(map[string]any)
		}
		e.Details[key] = value
	}
}

// WithCause wraps an underlying error.
func WithCause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

// New builds an Error of the given kind for a geography reference.
func New(kind Kind, geography string, opts ...Option) *Error {
	e := &Error{
		Kind:      kind,
		Geography: geography,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	if e.Geography != "" {
		b.WriteString(" ")
		b.WriteString(e.Geography)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind and, when set on the target, reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}

	return t.Reason == "" || t.Reason == e.Reason
}

// KindOf returns the kind of the first *Error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return ""
}

// ReasonOf returns the reason of the first *Error in the chain, or "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}

	return ""
}

// WithGeography returns a copy of err bound to a geography reference.
// Non-*Error values are returned unchanged.
func WithGeography(err error, geography string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	cp := *e
	cp.Geography = geography

	return &cp
}

// Sentinels usable with errors.Is.
var (
	ErrLoad       = &Error{Kind: KindLoad}
	ErrParse      = &Error{Kind: KindParse}
	ErrSecurity   = &Error{Kind: KindSecurity}
	ErrValidation = &Error{Kind: KindValidation}
)
