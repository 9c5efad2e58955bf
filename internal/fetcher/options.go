package fetcher

import (
	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/security"
	"github.com/woozymasta/geoguard/internal/sri"
)

// Option adjusts a single Fetch call.
type Option func(*options)

type options struct {
	policy func(*security.Policy)
	sri    *sri.Record
	parse  func([]geo.Feature) []geo.Feature
	object string
}

// WithPolicy overrides the default policy for one call. fn receives a copy
// of the engine's current snapshot.
func WithPolicy(fn func(*security.Policy)) Option {
	return func(o *options) { o.policy = fn }
}

// WithSRI pins the expected digest of the payload, taking precedence over
// the registry.
func WithSRI(rec sri.Record) Option {
	return func(o *options) { o.sri = &rec }
}

// WithParse post-processes the feature list, e.g. to filter features.
// fn gets a private copy of the slice with cloned Properties maps and may
// edit both. Shapes are shared with the cache and must not be modified.
// Features are re-keyed afterwards.
func WithParse(fn func([]geo.Feature) []geo.Feature) Option {
	return func(o *options) { o.parse = fn }
}

// WithObject selects the TopoJSON object to convert. The first object in
// document order is used by default.
func WithObject(name string) Option {
	return func(o *options) { o.object = name }
}

func collect(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	return o
}
