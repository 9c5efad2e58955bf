package geoerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := New(KindSecurity, "http://localhost/x.json",
		WithReason("localhost_not_allowed"),
		WithMessage("host %q", "localhost"))

	assert.Equal(t, `SECURITY_ERROR (localhost_not_allowed) http://localhost/x.json: host "localhost"`, err.Error())
}

func TestIsMatchesKindAndReason(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(KindSecurity, "u", WithReason("timeout")))

	assert.True(t, errors.Is(err, ErrSecurity))
	assert.True(t, errors.Is(err, &Error{Kind: KindSecurity, Reason: "timeout"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindSecurity, Reason: "response_too_large"}))
	assert.False(t, errors.Is(err, ErrParse))
}

func TestKindAndReasonOf(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindLoad, "u", WithReason("status"), WithCause(cause), WithDetail("status", 503))

	assert.Equal(t, KindLoad, KindOf(err))
	assert.Equal(t, "status", ReasonOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 503, err.Details["status"])

	assert.Equal(t, Kind(""), KindOf(cause))
}

func TestWithGeographyCopies(t *testing.T) {
	orig := New(KindParse, "")
	bound := WithGeography(orig, "https://example.com/a.json")

	var e *Error
	require.ErrorAs(t, bound, &e)
	assert.Equal(t, "https://example.com/a.json", e.Geography)
	assert.Empty(t, orig.Geography)

	plain := errors.New("plain")
	assert.Same(t, plain, WithGeography(plain, "x"))
}
