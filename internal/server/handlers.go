// Package server handles HTTP requests and middleware.
package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoguard/internal/config"
	"github.com/woozymasta/geoguard/internal/geo"
	"github.com/woozymasta/geoguard/internal/geoerr"
	"github.com/woozymasta/geoguard/internal/metrics"
	"github.com/woozymasta/geoguard/internal/prepare"
	"github.com/woozymasta/geoguard/internal/preview"
	"github.com/woozymasta/geoguard/internal/projection"
)

const etagCap = 20

// Routes returns the service mux.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/geographies", s.HandleGeographiesList)
	mux.HandleFunc("GET /geographies/{file}", s.HandleGeography)
	mux.HandleFunc("GET /geographies/{name}/paths.json", s.HandlePaths)
	mux.HandleFunc("GET /geographies/{name}/preview.svg", s.HandlePreview)
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.Gatherer))
	}

	return mux
}

// HandleGeographiesList serves the configured geographies.
func (s *ServerContext) HandleGeographiesList(w http.ResponseWriter, r *http.Request) {
	s.serveJSON(w, r, s.Geographies)
}

// HandleGeography serves the normalized geography: /geographies/{name}.json.
func (s *ServerContext) HandleGeography(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("file"), ".json")
	if !ok {
		http.NotFound(w, r)
		return
	}

	g, ok := s.load(w, r, name)
	if !ok {
		return
	}

	s.serveJSON(w, r, g)
}

type pathsResponse struct {
	Name     string             `json:"name"`
	Outline  string             `json:"outline"`
	Borders  string             `json:"borders"`
	Features []prepare.Prepared `json:"features"`
	Width    float64            `json:"width"`
	Height   float64            `json:"height"`
}

// HandlePaths serves path strings projected with Web Mercator onto the
// requested surface: /geographies/{name}/paths.json?width=&height=.
func (s *ServerContext) HandlePaths(w http.ResponseWriter, r *http.Request) {
	width, height, ok := s.dimensions(w, r)
	if !ok {
		return
	}
	g, ok := s.load(w, r, r.PathValue("name"))
	if !ok {
		return
	}

	proj := projection.Mercator(width, height)
	prepared := s.Preparer.Prepare(g.Features, proj)
	mesh := s.Preparer.PrepareMesh(g, proj)

	resp := pathsResponse{
		Name:     r.PathValue("name"),
		Width:    width,
		Height:   height,
		Outline:  mesh.Outline,
		Borders:  mesh.Borders,
		Features: make([]prepare.Prepared, len(prepared)),
	}
	for i, pf := range prepared {
		resp.Features[i] = pf.Slim()
	}

	s.serveJSON(w, r, resp)
}

// HandlePreview serves a minified SVG rendering of the geography.
func (s *ServerContext) HandlePreview(w http.ResponseWriter, r *http.Request) {
	width, height, ok := s.dimensions(w, r)
	if !ok {
		return
	}
	g, ok := s.load(w, r, r.PathValue("name"))
	if !ok {
		return
	}

	proj := projection.Mercator(width, height)
	doc := preview.Document{
		Features: s.Preparer.Prepare(g.Features, proj),
		Mesh:     s.Preparer.PrepareMesh(g, proj),
		Style:    s.Config.Render.Style,
		Width:    width,
		Height:   height,
	}

	var buf bytes.Buffer
	if err := preview.WriteSVG(&buf, doc); err != nil {
		log.Error().Err(err).Msg("Failed to render preview")
		http.Error(w, "preview failed", http.StatusInternalServerError)
		return
	}

	s.serveBytes(w, r, buf.Bytes(), "image/svg+xml")
}

// load resolves and fetches a geography, writing the error response itself
// when it fails.
func (s *ServerContext) load(w http.ResponseWriter, r *http.Request, name string) (*geo.Geography, bool) {
	cfg, ok := s.Resolve(name)
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}

	ref, opts := s.Reference(cfg)
	g, err := s.Fetcher.Fetch(r.Context(), ref, opts...)
	if err != nil {
		writeError(w, cfg, err)
		return nil, false
	}

	return g, true
}

func (s *ServerContext) dimensions(w http.ResponseWriter, r *http.Request) (float64, float64, bool) {
	width, height := s.Config.Render.Width, s.Config.Render.Height
	if width <= 0 {
		width = config.DefaultWidth
	}
	if height <= 0 {
		height = config.DefaultHeight
	}

	q := r.URL.Query()
	for key, dst := range map[string]*float64{"width": &width, "height": &height} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "invalid "+key, http.StatusBadRequest)
			return 0, 0, false
		}
		*dst = v
	}

	if !geo.IsValidMapDimensions(width, height) {
		http.Error(w, "invalid map dimensions", http.StatusBadRequest)
		return 0, 0, false
	}

	return width, height, true
}

func (s *ServerContext) serveJSON(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to encode response")
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}

	s.serveBytes(w, r, body, "application/json")
}

// serveBytes writes body with a content-hash ETag and answers conditional
// requests with 304.
func (s *ServerContext) serveBytes(w http.ResponseWriter, r *http.Request, body []byte, contentType string) {
	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendUint(buf, xxhash.Sum64(body), 16)
	buf = append(buf, '"')
	etag := string(buf)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(body)
}

type errorResponse struct {
	Kind      geoerr.Kind `json:"kind"`
	Reason    string      `json:"reason,omitempty"`
	Message   string      `json:"message"`
	Geography string      `json:"geography"`
}

// StatusOf maps an error kind to an HTTP status.
func StatusOf(err error) int {
	switch geoerr.KindOf(err) {
	case geoerr.KindSecurity:
		return http.StatusForbidden
	case geoerr.KindValidation:
		return http.StatusUnprocessableEntity
	case geoerr.KindParse, geoerr.KindLoad:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, g config.Geography, err error) {
	status := StatusOf(err)
	resp := errorResponse{
		Kind:      geoerr.KindOf(err),
		Reason:    geoerr.ReasonOf(err),
		Message:   err.Error(),
		Geography: g.Name,
	}

	var ge *geoerr.Error
	if errors.As(err, &ge) && ge.Message != "" {
		resp.Message = ge.Message
	}

	log.Warn().
		Err(err).
		Str("geography", g.Name).
		Int("status", status).
		Msg("Geography request failed")

	body, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
