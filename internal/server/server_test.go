package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoguard/internal/config"
	"github.com/woozymasta/geoguard/internal/fetcher"
	"github.com/woozymasta/geoguard/internal/geoerr"
	"github.com/woozymasta/geoguard/internal/metrics"
)

const squares = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "a", "properties": {"name": "Alpha"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
    {"type": "Feature", "id": "b", "properties": {"name": "Beta"},
     "geometry": {"type": "Polygon", "coordinates": [[[10,0],[20,0],[20,10],[10,10],[10,0]]]}}
  ]
}`

func newTestServer(t *testing.T) (*ServerContext, http.Handler) {
	t.Helper()

	dir := t.TempDir()
	good := filepath.Join(dir, "squares.json")
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(good, []byte(squares), 0o600))
	require.NoError(t, os.WriteFile(broken, []byte(`{"type": "Topology"`), 0o600))

	doc := `
geographies:
  - name: squares
    aliases: [sq]
    description: two squares
    file: ` + good + `
  - name: broken
    file: ` + broken + `
  - name: missing
    file: ` + filepath.Join(dir, "nope.json") + `
  - name: local
    url: http://127.0.0.1:1/world.json
`
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	f, err := fetcher.New(fetcher.Config{Metrics: metrics.New(reg)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	s := NewServerContext(cfg, f, reg)
	var logs bytes.Buffer

	return s, RequestLogger(zerolog.New(&logs))(s.Routes())
}

func get(h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestContextSkipsUnreadableFiles(t *testing.T) {
	s, _ := newTestServer(t)

	names := make([]string, len(s.Geographies))
	for i, g := range s.Geographies {
		names[i] = g.Name
	}
	assert.Equal(t, []string{"broken", "local", "squares"}, names)

	g, ok := s.Resolve("SQ")
	require.True(t, ok)
	assert.Equal(t, "squares", g.Name)

	_, ok = s.Resolve("missing")
	assert.False(t, ok)
}

func TestGeographiesList(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(h, "/api/geographies")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "squares", list[2]["name"])
	assert.Equal(t, "two squares", list[2]["description"])
	assert.NotContains(t, rec.Body.String(), "file")
}

func TestGeographyETag(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(h, "/geographies/sq.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"rsmKey":"geo-1"`)

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = get(h, "/geographies/squares.json", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, get(h, "/geographies/squares").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/geographies/atlantis.json").Code)
}

func TestPaths(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(h, "/geographies/squares/paths.json?width=400&height=300")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
			Key        string         `json:"rsmKey"`
			Path       string         `json:"svgPath"`
		} `json:"features"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 400, resp.Width, 0)
	assert.InDelta(t, 300, resp.Height, 0)
	require.Len(t, resp.Features, 2)
	assert.Equal(t, "geo-0", resp.Features[0].Key)
	assert.Equal(t, "Alpha", resp.Features[0].Properties["name"])
	assert.True(t, strings.HasPrefix(resp.Features[0].Path, "M"))
	assert.True(t, strings.HasSuffix(resp.Features[0].Path, "Z"))
	assert.NotContains(t, rec.Body.String(), `"geometry"`)
}

func TestPathsRejectsDimensions(t *testing.T) {
	_, h := newTestServer(t)

	for _, q := range []string{"width=0", "height=-1", "width=abc", "width=NaN"} {
		rec := get(h, "/geographies/squares/paths.json?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestPreview(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(h, "/geographies/squares/preview.svg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")
}

func TestErrorResponses(t *testing.T) {
	_, h := newTestServer(t)

	cases := map[string]struct {
		kind   geoerr.Kind
		reason string
		status int
	}{
		"/geographies/local.json":  {geoerr.KindSecurity, "protocol_not_allowed", http.StatusForbidden},
		"/geographies/broken.json": {geoerr.KindParse, "", http.StatusBadGateway},
	}

	for target, want := range cases {
		rec := get(h, target)
		require.Equal(t, want.status, rec.Code, target)

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, want.kind, body.Kind, target)
		if want.reason != "" {
			assert.Equal(t, want.reason, body.Reason, target)
		}
		assert.NotEmpty(t, body.Message)
		assert.NotEmpty(t, body.Geography)
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, StatusOf(geoerr.New(geoerr.KindSecurity, "")))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(geoerr.New(geoerr.KindValidation, "")))
	assert.Equal(t, http.StatusBadGateway, StatusOf(geoerr.New(geoerr.KindLoad, "")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(geoerr.New(geoerr.KindConfiguration, "")))
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	require.Equal(t, http.StatusOK, get(h, "/geographies/squares.json").Code)

	rec := get(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "geoguard_")
}

func TestRequestLogger(t *testing.T) {
	var logs bytes.Buffer
	h := RequestLogger(zerolog.New(&logs))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	get(h, "/pot")

	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `"status":418`)
	assert.Contains(t, logs.String(), `"bytes":15`)
	assert.Contains(t, logs.String(), `"path":"/pot"`)
}
