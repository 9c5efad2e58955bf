// Package sri computes and verifies subresource-integrity digests of
// geography payloads.
//
// The Registry starts with no pins. In ModeKnown a fresh registry therefore
// enforces nothing, not even for the well-known world-atlas CDN files: pins
// come only from the sri.pins config section (see cmd/sri-gen) or Add.
// Use ModeStrict to refuse every URL that has no pin.
package sri

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"hash"
	"strings"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

// Algorithm is a supported digest algorithm.
type Algorithm string

// Supported algorithms.
const (
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// DefaultAlgorithm is used when generating pins.
const DefaultAlgorithm = SHA384

// Rejection reasons.
const (
	ReasonMismatch  = "integrity_mismatch"
	ReasonMissing   = "integrity_missing"
	ReasonAlgorithm = "unsupported_algorithm"
	ReasonMalformed = "malformed_integrity"
)

// Record pins the expected digest of a payload.
// Hash is in SRI form, "<algorithm>-<base64 digest>"; a bare base64 digest is
// accepted and read with Algorithm.
type Record struct {
	Algorithm Algorithm `yaml:"algorithm" json:"algorithm"`
	Hash      string    `yaml:"hash" json:"hash"`
	Enforce   bool      `yaml:"enforce" json:"enforce"`
}

func (a Algorithm) new() (hash.Hash, bool) {
	switch a {
	case SHA256:
		return sha256.New(), true
	case SHA384:
		return sha512.New384(), true
	case SHA512:
		return sha512.New(), true
	}

	return nil, false
}

// Valid reports whether a is supported.
func (a Algorithm) Valid() bool {
	_, ok := a.new()
	return ok
}

// Digest returns the SRI string of data, e.g. "sha384-oqVuAf...".
func Digest(alg Algorithm, data []byte) (string, error) {
	h, ok := alg.new()
	if !ok {
		return "", geoerr.New(geoerr.KindSecurity, "",
			geoerr.WithReason(ReasonAlgorithm),
			geoerr.WithMessage("algorithm %q", alg))
	}
	_, _ = h.Write(data)

	return string(alg) + "-" + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// ParseRecord builds an enforced record from an SRI string.
func ParseRecord(integrity string) (Record, error) {
	alg, digest, ok := strings.Cut(strings.TrimSpace(integrity), "-")
	if !ok || digest == "" {
		return Record{}, geoerr.New(geoerr.KindSecurity, "",
			geoerr.WithReason(ReasonMalformed),
			geoerr.WithMessage("integrity %q is not <algorithm>-<digest>", integrity))
	}
	a := Algorithm(strings.ToLower(alg))
	if !a.Valid() {
		return Record{}, geoerr.New(geoerr.KindSecurity, "",
			geoerr.WithReason(ReasonAlgorithm),
			geoerr.WithMessage("algorithm %q", alg))
	}

	return Record{Algorithm: a, Hash: string(a) + "-" + digest, Enforce: true}, nil
}

// expected returns the algorithm and base64 digest the record pins.
func (r Record) expected() (Algorithm, string) {
	if alg, digest, ok := strings.Cut(r.Hash, "-"); ok && Algorithm(strings.ToLower(alg)).Valid() {
		return Algorithm(strings.ToLower(alg)), digest
	}

	return r.Algorithm, r.Hash
}

// Verify checks data against r. Records that are not enforced always pass.
// The digest covers the exact bytes received.
func Verify(data []byte, r Record) error {
	if !r.Enforce {
		return nil
	}

	alg, want := r.expected()
	got, err := Digest(alg, data)
	if err != nil {
		return err
	}
	got = strings.TrimPrefix(got, string(alg)+"-")

	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return geoerr.New(geoerr.KindSecurity, "",
			geoerr.WithReason(ReasonMismatch),
			geoerr.WithMessage("%s digest does not match the pinned value", alg),
			geoerr.WithDetail("expected", string(alg)+"-"+want),
			geoerr.WithDetail("actual", string(alg)+"-"+got))
	}

	return nil
}
