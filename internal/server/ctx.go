package server

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/woozymasta/geoguard/internal/config"
	"github.com/woozymasta/geoguard/internal/fetcher"
	"github.com/woozymasta/geoguard/internal/prepare"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config      *config.Config
	Fetcher     *fetcher.Fetcher
	Gatherer    prometheus.Gatherer
	Preparer    prepare.Preparer
	Geographies []config.Geography
	resolver    map[string]int
	files       map[string][]byte
}

// NewServerContext indexes the configured geographies by name and alias.
// File-backed geographies are read once here; unreadable ones are skipped.
func NewServerContext(cfg *config.Config, f *fetcher.Fetcher, g prometheus.Gatherer) *ServerContext {
	log.Info().Int("config_geographies_count", len(cfg.Geographies)).Msg("Initializing server context")

	s := &ServerContext{
		Config:   cfg,
		Fetcher:  f,
		Gatherer: g,
		Preparer: prepare.Preparer{Precision: *cfg.Render.Precision, PointRadius: prepare.Default.PointRadius},
		resolver: make(map[string]int),
		files:    make(map[string][]byte),
	}

	valid := make([]config.Geography, 0, len(cfg.Geographies))
	for _, geo := range cfg.Geographies {
		if geo.File != "" {
			data, err := os.ReadFile(geo.File)
			if err != nil {
				log.Warn().
					Err(err).
					Str("geography", geo.Name).
					Str("path", geo.File).
					Msg("Skipping geography: file not readable")
				continue
			}
			s.files[geo.Name] = data
		}

		log.Debug().
			Str("geography", geo.Name).
			Str("url", geo.URL).
			Str("file", geo.File).
			Msg("Geography added to context")

		valid = append(valid, geo)
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Name < valid[j].Name })

	for i, geo := range valid {
		s.resolver[strings.ToLower(geo.Name)] = i
		for _, alias := range geo.Aliases {
			s.resolver[strings.ToLower(alias)] = i
		}
	}
	s.Geographies = valid

	log.Info().
		Int("valid_geographies_count", len(valid)).
		Msg("Server context initialized successfully")

	return s
}

// Resolve finds a geography by name or alias, case-insensitively.
func (s *ServerContext) Resolve(name string) (config.Geography, bool) {
	i, ok := s.resolver[strings.ToLower(name)]
	if !ok {
		return config.Geography{}, false
	}

	return s.Geographies[i], true
}

// Reference returns the fetch reference and options of a configured geography.
func (s *ServerContext) Reference(g config.Geography) (fetcher.Reference, []fetcher.Option) {
	var opts []fetcher.Option
	if g.Object != "" {
		opts = append(opts, fetcher.WithObject(g.Object))
	}

	if g.File != "" {
		return fetcher.Raw{Name: g.Name, Data: s.files[g.Name]}, opts
	}

	return fetcher.URL(g.URL), opts
}

// Preload fetches every geography marked for preloading. Failures are logged
// and do not stop the others.
func (s *ServerContext) Preload(ctx context.Context, concurrency int) {
	p := pool.New().WithMaxGoroutines(max(1, concurrency))
	for _, g := range s.Geographies {
		if !g.Preload {
			continue
		}
		p.Go(func() {
			ref, opts := s.Reference(g)
			if err := s.Fetcher.Preload(ctx, ref, opts...); err != nil {
				log.Warn().Err(err).Str("geography", g.Name).Msg("Preload failed")
				return
			}
			log.Info().Str("geography", g.Name).Msg("Geography preloaded")
		})
	}
	p.Wait()
}
