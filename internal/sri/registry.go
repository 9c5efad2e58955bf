package sri

import (
	"net/url"
	"sort"
	"strings"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

// Mode selects how the registry enforces integrity.
type Mode string

// Enforcement modes.
const (
	// ModeKnown enforces pins for registered URLs and passes the rest.
	ModeKnown Mode = "known"
	// ModeStrict requires a pin for every fetched URL.
	ModeStrict Mode = "strict"
	// ModeDisabled turns verification off, e.g. for local development data.
	ModeDisabled Mode = "disabled"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeKnown, ModeStrict, ModeDisabled:
		return true
	}

	return false
}

// Pin is a registry entry.
type Pin struct {
	URL    string `yaml:"url" json:"url"`
	Record `yaml:",inline" json:",inline"`
}

// Registry maps geography URLs to pinned digests. It is safe for concurrent
// use; one instance is shared by every fetcher of a process.
type Registry struct {
	pins cmap.ConcurrentMap[string, Record]
	mode atomic.Value // Mode
}

// NewRegistry returns a registry in ModeKnown seeded with pins. Without pins
// it resolves no URL.
func NewRegistry(pins ...Pin) *Registry {
	r := &Registry{pins: cmap.New[Record]()}
	r.mode.Store(ModeKnown)
	for _, p := range pins {
		r.Add(p.URL, p.Record)
	}

	return r
}

// Add pins url to rec.
func (r *Registry) Add(rawURL string, rec Record) {
	r.pins.Set(Key(rawURL), rec)
}

// Remove drops the pin for url.
func (r *Registry) Remove(rawURL string) {
	r.pins.Remove(Key(rawURL))
}

// Lookup returns the pin for url.
func (r *Registry) Lookup(rawURL string) (Record, bool) {
	return r.pins.Get(Key(rawURL))
}

// SetMode switches enforcement for the whole process.
func (r *Registry) SetMode(m Mode) error {
	if !m.Valid() {
		return geoerr.New(geoerr.KindConfiguration, "",
			geoerr.WithReason("invalid_sri_mode"),
			geoerr.WithMessage("mode %q", m))
	}
	r.mode.Store(m)

	return nil
}

// Mode returns the current enforcement mode.
func (r *Registry) Mode() Mode {
	return r.mode.Load().(Mode)
}

// Resolve decides which record applies to a fetch of url. An explicit record
// from the caller wins over the registry. ok is false when nothing needs
// verifying.
func (r *Registry) Resolve(rawURL string, explicit *Record) (rec Record, ok bool, err error) {
	mode := r.Mode()
	if mode == ModeDisabled {
		return Record{}, false, nil
	}

	if explicit != nil {
		rec = *explicit
	} else if pinned, found := r.Lookup(rawURL); found {
		rec = pinned
	} else if mode == ModeStrict {
		return Record{}, false, geoerr.New(geoerr.KindSecurity, rawURL,
			geoerr.WithReason(ReasonMissing),
			geoerr.WithMessage("strict integrity mode requires a pin"))
	} else {
		return Record{}, false, nil
	}

	if mode == ModeStrict {
		rec.Enforce = true
	}

	return rec, rec.Enforce, nil
}

// Pins returns a sorted snapshot of all entries.
func (r *Registry) Pins() []Pin {
	out := make([]Pin, 0, r.pins.Count())
	for item := range r.pins.IterBuffered() {
		out = append(out, Pin{URL: item.Key, Record: item.Val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })

	return out
}

// Key normalizes a URL for registry and cache lookups: lowercase scheme and
// host, no fragment, no default port.
func Key(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() {
		return strings.TrimSpace(rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""

	return u.String()
}
