package sri

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/pool"
)

// Downloader fetches the raw bytes of a URL under whatever policy it applies.
type Downloader interface {
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// Generated is the outcome for one URL of GenerateForURLs.
type Generated struct {
	Err error
	Pin Pin
}

// GenerateForURLs downloads every URL and returns ready-to-pin records in
// input order. It is meant for populating a registry, not for runtime checks.
// A failing URL does not stop the others.
func GenerateForURLs(ctx context.Context, d Downloader, urls []string, alg Algorithm, concurrency int) []Generated {
	if alg == "" {
		alg = DefaultAlgorithm
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	type indexed struct {
		res Generated
		idx int
	}

	p := pool.NewWithResults[indexed]().WithMaxGoroutines(concurrency)
	for i, u := range urls {
		p.Go(func() indexed {
			out := indexed{idx: i, res: Generated{Pin: Pin{URL: u}}}

			data, err := d.Download(ctx, u)
			if err != nil {
				out.res.Err = err
				return out
			}
			digest, err := Digest(alg, data)
			if err != nil {
				out.res.Err = err
				return out
			}
			out.res.Pin.Record = Record{Algorithm: alg, Hash: digest, Enforce: true}

			return out
		})
	}

	results := p.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].idx < results[j].idx })

	out := make([]Generated, len(results))
	for i, r := range results {
		out[i] = r.res
	}

	return out
}
