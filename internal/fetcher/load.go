package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/geoerr"
	"github.com/woozymasta/geoguard/internal/security"
	"github.com/woozymasta/geoguard/internal/sri"
)

// load retrieves, verifies and normalizes one URL. It runs once per flight.
func (f *Fetcher) load(ctx context.Context, rawURL string, p security.Policy, rec sri.Record, enforce bool, object string) (*geo.Geography, error) {
	start := time.Now()
	data, err := f.retrieve(ctx, rawURL, p)
	if err != nil {
		return nil, err
	}
	f.metrics.Loaded(len(data), time.Since(start))

	if enforce {
		if err := sri.Verify(data, rec); err != nil {
			f.log.Warn().Str("url", rawURL).Str("reason", geoerr.ReasonOf(err)).Msg("integrity check failed")
			return nil, err
		}
	}

	g, err := Normalize(data, object)
	if err != nil {
		return nil, err
	}
	g.Source = rawURL

	f.log.Debug().
		Str("url", rawURL).
		Int("bytes", len(data)).
		Int("features", len(g.Features)).
		Dur("took", time.Since(start)).
		Msg("geography loaded")

	return g, nil
}

// Download returns the body of rawURL after policy checks on the URL and the
// response, without parsing or caching. It satisfies sri.Downloader.
func (f *Fetcher) Download(ctx context.Context, rawURL string) ([]byte, error) {
	p := f.engine.Policy()
	if _, err := security.CheckURL(rawURL, p); err != nil {
		return nil, err
	}

	data, err := f.retrieve(ctx, rawURL, p)
	if err != nil {
		return nil, geoerr.WithGeography(err, rawURL)
	}

	return data, nil
}

// retrieve issues the request under p: the policy and request scheme are
// bound to the context for the dial guard and redirect hook, the timeout
// covers the whole exchange and the body is read under the size cap.
func (f *Fetcher) retrieve(ctx context.Context, rawURL string, p security.Policy) ([]byte, error) {
	ctx, cancel := context.WithTimeout(security.WithPolicy(ctx, p), p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, geoerr.New(geoerr.KindLoad, rawURL,
			geoerr.WithReason("request"), geoerr.WithCause(err))
	}
	req = req.WithContext(security.WithScheme(ctx, req.URL.Scheme))
	req.Header.Set("Accept", strings.Join(p.AllowedContentTypes, ", "))

	f.log.Trace().Str("url", rawURL).Msg("requesting geography")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err, p)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, geoerr.New(geoerr.KindLoad, rawURL,
			geoerr.WithReason("http_status"),
			geoerr.WithMessage("unexpected status %s", resp.Status),
			geoerr.WithDetail("status", resp.StatusCode))
	}
	if err := security.CheckResponse(resp.Header, p); err != nil {
		return nil, err
	}

	data, err := security.ReadLimited(resp.Body, p)
	if err != nil {
		return nil, classify(ctx, err, p)
	}

	return data, nil
}

// classify maps transport failures: policy errors raised by the dial guard,
// redirect hook or size cap pass through, an elapsed deadline is a timeout,
// anything else is a load error.
func classify(ctx context.Context, err error, p security.Policy) error {
	var ge *geoerr.Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return geoerr.New(geoerr.KindSecurity, "",
			geoerr.WithReason(security.ReasonTimeout),
			geoerr.WithMessage("no complete response within %s", p.Timeout),
			geoerr.WithDetail("timeout", p.Timeout.String()),
			geoerr.WithCause(err))
	}

	return geoerr.New(geoerr.KindLoad, "",
		geoerr.WithReason("transport"), geoerr.WithCause(err))
}
