// Package security screens geography URLs and responses against a
// configurable network-origin policy.
package security

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

// Defaults for DefaultPolicy.
const (
	DefaultMaxResponseSize int64 = 10 << 20
	DefaultTimeout               = 10 * time.Second
)

// DefaultContentTypes are the media types accepted for geography payloads.
var DefaultContentTypes = []string{
	"application/json",
	"application/geo+json",
	"application/vnd.geo+json",
	"application/topo+json",
	"text/plain",
}

// Policy decides which URLs may be fetched and which responses accepted.
// A Policy value is a snapshot; mutate copies only.
type Policy struct {
	AllowedProtocols    []string      `yaml:"allowed_protocols" json:"allowed_protocols"`
	AllowedContentTypes []string      `yaml:"allowed_content_types" json:"allowed_content_types"`
	MaxResponseSize     int64         `yaml:"max_response_size" json:"max_response_size"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	AllowLocalhost      bool          `yaml:"allow_localhost" json:"allow_localhost"`
	AllowHTTPLocalhost  bool          `yaml:"allow_http_localhost" json:"allow_http_localhost"`
	StrictHTTPSOnly     bool          `yaml:"strict_https_only" json:"strict_https_only"`
}

// DefaultPolicy allows https only, rejects local hosts and caps payloads at
// 10 MiB and 10 seconds.
func DefaultPolicy() Policy {
	return Policy{
		AllowedProtocols:    []string{"https"},
		AllowedContentTypes: slices.Clone(DefaultContentTypes),
		MaxResponseSize:     DefaultMaxResponseSize,
		Timeout:             DefaultTimeout,
	}
}

// DevelopmentPolicy relaxes protocol and localhost rules of base.
// Size and time caps are carried over unchanged.
func DevelopmentPolicy(base Policy) Policy {
	p := base.Clone()
	if !p.allowsProtocol("http") {
		p.AllowedProtocols = append(p.AllowedProtocols, "http")
	}
	if !p.allowsProtocol("https") {
		p.AllowedProtocols = append(p.AllowedProtocols, "https")
	}
	p.AllowLocalhost = true
	p.AllowHTTPLocalhost = true
	p.StrictHTTPSOnly = false

	return p
}

// Clone returns a deep copy.
func (p Policy) Clone() Policy {
	p.AllowedProtocols = slices.Clone(p.AllowedProtocols)
	p.AllowedContentTypes = slices.Clone(p.AllowedContentTypes)

	return p
}

// Validate reports a configuration error for unusable policies.
func (p Policy) Validate() error {
	var msg string
	switch {
	case len(p.AllowedProtocols) == 0:
		msg = "allowed_protocols is empty"
	case len(p.AllowedContentTypes) == 0:
		msg = "allowed_content_types is empty"
	case p.MaxResponseSize <= 0:
		msg = "max_response_size must be positive"
	case p.Timeout <= 0:
		msg = "timeout must be positive"
	default:
		return nil
	}

	return geoerr.New(geoerr.KindConfiguration, "",
		geoerr.WithReason("invalid_policy"), geoerr.WithMessage("%s", msg))
}

// allowsLocalPeer reports whether a local peer may be dialed for scheme.
// AllowHTTPLocalhost covers plain http only.
func (p Policy) allowsLocalPeer(scheme string) bool {
	return p.AllowLocalhost || (p.AllowHTTPLocalhost && scheme == "http")
}

func (p Policy) allowsProtocol(scheme string) bool {
	for _, proto := range p.AllowedProtocols {
		if normalizeProtocol(proto) == scheme {
			return true
		}
	}

	return false
}

// normalizeProtocol accepts both "https" and "https:".
func normalizeProtocol(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ":")
}

type policyKey struct{}

// WithPolicy binds a policy snapshot to ctx so that dial-time and redirect
// checks use the same rules as the request that started them.
func WithPolicy(ctx context.Context, p Policy) context.Context {
	return context.WithValue(ctx, policyKey{}, p)
}

// PolicyFrom returns the policy bound to ctx.
func PolicyFrom(ctx context.Context) (Policy, bool) {
	p, ok := ctx.Value(policyKey{}).(Policy)
	return p, ok
}
