// Package fetcher loads geographies from URLs or inline data, screens them
// with the security policy and integrity registry, and keeps the normalized
// results in a bounded cache shared by concurrent callers.
package fetcher

import (
	"context"
	"maps"
	"net/http"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/iter"
	"golang.org/x/sync/singleflight"

	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/geoerr"
	"github.com/woozymasta/geoguard/internal/metrics"
	"github.com/woozymasta/geoguard/internal/security"
	"github.com/woozymasta/geoguard/internal/sri"
	"github.com/woozymasta/geoguard/internal/topojson"
)

// DefaultCacheCapacity bounds the resolved-geography cache when Config
// leaves it unset.
const DefaultCacheCapacity = 64

// Config wires a Fetcher. Engine and Registry are shared with whoever
// reconfigures them at runtime.
type Config struct {
	Engine   *security.Engine
	Registry *sri.Registry
	// HTTPClient replaces the guarded default client. Its redirect hook is
	// set to security.CheckRedirect when nil.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	Metrics    *metrics.Metrics
	// CacheCapacity is the number of resolved geographies kept.
	CacheCapacity int
	// Concurrency bounds FetchAll; zero means GOMAXPROCS.
	Concurrency int
}

// Fetcher is safe for concurrent use. Create one per process with New and
// release it with Close.
type Fetcher struct {
	engine   *security.Engine
	registry *sri.Registry
	client   *http.Client
	cache    *lru.Cache[string, *geo.Geography]
	metrics  *metrics.Metrics
	log      zerolog.Logger
	flights  singleflight.Group
	workers  int
	closed   atomic.Bool
}

// Result is the outcome of one reference in FetchAll.
type Result struct {
	Geography *geo.Geography
	Err       error
	Reference Reference
}

// New builds a Fetcher. Missing engine and registry default to
// security.DefaultPolicy and an empty registry in known mode.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Engine == nil {
		e, err := security.NewEngine(security.DefaultPolicy())
		if err != nil {
			return nil, err
		}
		cfg.Engine = e
	}
	if cfg.Registry == nil {
		cfg.Registry = sri.NewRegistry()
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultCacheCapacity
	}

	f := &Fetcher{
		engine:   cfg.Engine,
		registry: cfg.Registry,
		client:   cfg.HTTPClient,
		metrics:  cfg.Metrics,
		workers:  cfg.Concurrency,
		log:      log.Logger,
	}
	if cfg.Logger != nil {
		f.log = *cfg.Logger
	}
	f.log = f.log.With().Str("component", "fetcher").Logger()

	if f.client == nil {
		f.client = newClient()
	} else if f.client.CheckRedirect == nil {
		c := *f.client
		c.CheckRedirect = security.CheckRedirect
		f.client = &c
	}

	cache, err := lru.NewWithEvict(cfg.CacheCapacity, func(key string, _ *geo.Geography) {
		f.log.Trace().Str("key", key).Msg("evicted geography")
	})
	if err != nil {
		return nil, geoerr.New(geoerr.KindConfiguration, "",
			geoerr.WithReason("invalid_cache_capacity"), geoerr.WithCause(err))
	}
	f.cache = cache

	return f, nil
}

// newClient returns a client that dials through the peer guard and re-checks
// every redirect. Proxies are not used: the guard must see the real peer.
func newClient() *http.Client {
	transport := &http.Transport{
		DialContext:           security.NewDialer(30 * time.Second).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Transport:     transport,
		CheckRedirect: security.CheckRedirect,
	}
}

// Engine returns the policy engine the fetcher reads its defaults from.
func (f *Fetcher) Engine() *security.Engine { return f.engine }

// Registry returns the integrity registry consulted for URL references.
func (f *Fetcher) Registry() *sri.Registry { return f.registry }

// Close drops cached geographies and idle connections. Later calls fail.
func (f *Fetcher) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.Clear()
	f.client.CloseIdleConnections()

	return nil
}

// Clear empties the cache. In-flight loads finish and repopulate it.
func (f *Fetcher) Clear() {
	f.cache.Purge()
	f.metrics.Entries(0)
	f.log.Debug().Msg("cache cleared")
}

// Len is the number of cached geographies.
func (f *Fetcher) Len() int { return f.cache.Len() }

// Fetch resolves ref to a normalized geography. Concurrent calls for the
// same URL share one request and observe the same result. Failures are
// never cached, so a later call retries.
//
// The returned geography is shared with the cache and other callers and
// must not be modified.
func (f *Fetcher) Fetch(ctx context.Context, ref Reference, opts ...Option) (*geo.Geography, error) {
	g, err := f.fetch(ctx, ref, collect(opts))
	if err != nil {
		err = geoerr.WithGeography(err, Describe(ref))
		f.metrics.Fetch(metrics.OutcomeFailed)
		f.metrics.Reject(string(geoerr.KindOf(err)), geoerr.ReasonOf(err))
		f.log.Debug().Err(err).Str("ref", Describe(ref)).Msg("fetch failed")
		return nil, err
	}

	return g, nil
}

// Preload fetches ref ahead of use so later Fetch calls hit the cache.
func (f *Fetcher) Preload(ctx context.Context, ref Reference, opts ...Option) error {
	_, err := f.Fetch(ctx, ref, opts...)
	return err
}

// FetchAll fetches every reference independently; one failure does not
// abort the others. Results keep the order of refs.
func (f *Fetcher) FetchAll(ctx context.Context, refs []Reference, opts ...Option) []Result {
	mapper := iter.Mapper[Reference, Result]{MaxGoroutines: f.workers}

	return mapper.Map(refs, func(ref *Reference) Result {
		g, err := f.Fetch(ctx, *ref, opts...)
		return Result{Reference: *ref, Geography: g, Err: err}
	})
}

func (f *Fetcher) fetch(ctx context.Context, ref Reference, o options) (*geo.Geography, error) {
	if f.closed.Load() {
		return nil, geoerr.New(geoerr.KindConfiguration, "",
			geoerr.WithReason("fetcher_closed"), geoerr.WithMessage("fetcher is closed"))
	}

	var (
		g   *geo.Geography
		err error
	)
	switch r := ref.(type) {
	case URL:
		g, err = f.fetchURL(ctx, string(r), o)
	case Raw:
		g, err = f.fetchRaw(r, o)
	case InlineTopology:
		g, err = normalizeTopology(r.Topology, o.object)
	case InlineCollection:
		g, err = normalizeCollection(r.Collection)
	case nil:
		err = geoerr.New(geoerr.KindValidation, "",
			geoerr.WithReason("missing_reference"), geoerr.WithMessage("no geography reference"))
	default:
		err = geoerr.New(geoerr.KindValidation, "",
			geoerr.WithReason("unsupported_reference"), geoerr.WithMessage("reference type %T", ref))
	}
	if err != nil {
		return nil, err
	}

	return transform(g, o.parse), nil
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string, o options) (*geo.Geography, error) {
	p, err := f.policy(o)
	if err != nil {
		return nil, err
	}
	u, err := security.CheckURL(rawURL, p)
	if err != nil {
		return nil, err
	}
	rec, enforce, err := f.registry.Resolve(rawURL, o.sri)
	if err != nil {
		return nil, err
	}

	key := sri.Key(rawURL)
	if o.object != "" {
		key += "#" + o.object
	}
	if enforce {
		// pinned and unpinned loads of one URL do not share results
		key += "|" + rec.Hash
	}

	if g, ok := f.cache.Get(key); ok {
		f.metrics.Cache(true)
		f.metrics.Fetch(metrics.OutcomeCached)
		f.log.Trace().Str("key", key).Msg("cache hit")
		return g, nil
	}
	f.metrics.Cache(false)

	ch := f.flights.DoChan(key, func() (any, error) {
		// the load outlives any single waiter; the policy timeout bounds it
		loadCtx := context.WithoutCancel(ctx)
		g, err := f.load(loadCtx, u.String(), p, rec, enforce, o.object)
		if err != nil {
			return nil, err
		}
		f.cache.Add(key, g)
		f.metrics.Entries(f.cache.Len())

		return g, nil
	})

	select {
	case <-ctx.Done():
		return nil, geoerr.New(geoerr.KindLoad, "",
			geoerr.WithReason("canceled"), geoerr.WithCause(ctx.Err()))
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		outcome := metrics.OutcomeLoaded
		if res.Shared {
			outcome = metrics.OutcomeShared
		}
		f.metrics.Fetch(outcome)

		return res.Val.(*geo.Geography), nil
	}
}

func (f *Fetcher) fetchRaw(r Raw, o options) (*geo.Geography, error) {
	if o.sri != nil {
		if err := sri.Verify(r.Data, *o.sri); err != nil {
			return nil, err
		}
	}

	key := contentKey(r.Data)
	if o.object != "" {
		key += "#" + o.object
	}
	if g, ok := f.cache.Get(key); ok {
		f.metrics.Cache(true)
		f.metrics.Fetch(metrics.OutcomeCached)
		return named(g, r.Name), nil
	}
	f.metrics.Cache(false)

	g, err := Normalize(r.Data, o.object)
	if err != nil {
		return nil, err
	}
	f.cache.Add(key, g)
	f.metrics.Entries(f.cache.Len())
	f.metrics.Fetch(metrics.OutcomeLoaded)

	return named(g, r.Name), nil
}

// named returns a shallow copy of a content-keyed entry labelled for one
// caller. The entry itself stays unnamed.
func named(g *geo.Geography, name string) *geo.Geography {
	out := *g
	out.Source = name
	return &out
}

// policy snapshots the engine default and applies the per-call override.
func (f *Fetcher) policy(o options) (security.Policy, error) {
	p := f.engine.Policy()
	if o.policy == nil {
		return p, nil
	}
	o.policy(&p)
	if err := p.Validate(); err != nil {
		return security.Policy{}, err
	}

	return p, nil
}

// Normalize detects the payload format and converts it into a validated
// geography. object selects the TopoJSON object.
func Normalize(data []byte, object string) (*geo.Geography, error) {
	format, err := geo.DetectFormat(data)
	if err != nil {
		return nil, err
	}

	switch format {
	case geo.FormatTopology:
		t, err := topojson.Decode(data)
		if err != nil {
			return nil, err
		}
		return normalizeTopology(t, object)
	case geo.FormatFeatureCollection:
		fs, err := geo.DecodeFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		return validated(&geo.Geography{Features: fs})
	default:
		return nil, geoerr.New(geoerr.KindParse, "",
			geoerr.WithReason("unrecognized_format"), geoerr.WithMessage("format %s", format))
	}
}

func normalizeTopology(t *topojson.Topology, object string) (*geo.Geography, error) {
	if t == nil {
		return nil, geoerr.New(geoerr.KindValidation, "",
			geoerr.WithReason("missing_reference"), geoerr.WithMessage("nil topology"))
	}
	g, err := t.Normalize(object)
	if err != nil {
		return nil, err
	}

	return validated(g)
}

func normalizeCollection(fc geo.GeoJSONFeatureCollection) (*geo.Geography, error) {
	fs, err := geo.FromCollection(fc)
	if err != nil {
		return nil, err
	}

	return validated(&geo.Geography{Features: fs})
}

func validated(g *geo.Geography) (*geo.Geography, error) {
	if err := geo.ValidateFeatures(g.Features); err != nil {
		return nil, err
	}

	return g, nil
}

// transform applies a caller's parse function to a private copy. Each
// feature's Properties map is cloned so edits stay with the caller; Shape
// slices are still shared with the cache and must be treated as read-only.
func transform(g *geo.Geography, parse func([]geo.Feature) []geo.Feature) *geo.Geography {
	if parse == nil {
		return g
	}
	fs := make([]geo.Feature, len(g.Features))
	for i, feat := range g.Features {
		feat.Properties = maps.Clone(feat.Properties)
		fs[i] = feat
	}

	return g.WithFeatures(parse(fs))
}
