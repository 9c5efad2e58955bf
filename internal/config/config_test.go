package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoguard/internal/geoerr"
	"github.com/woozymasta/geoguard/internal/security"
	"github.com/woozymasta/geoguard/internal/sri"
)

func TestLoadExample(t *testing.T) {
	cfg, err := Load("../../config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Cache.Capacity)
	assert.Equal(t, 10*time.Second, cfg.Policy().Timeout)
	assert.Equal(t, sri.ModeKnown, cfg.SRI.Mode)
	require.NotEmpty(t, cfg.Geographies)
	assert.Equal(t, "world-110m", cfg.Geographies[0].Name)
	assert.Equal(t, []string{"world"}, cfg.Geographies[0].Aliases)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("geographies: []\n"))
	require.NoError(t, err)

	assert.Equal(t, security.DefaultPolicy(), cfg.Policy())
	assert.Equal(t, sri.ModeKnown, cfg.SRI.Mode)
	assert.Equal(t, sri.DefaultAlgorithm, cfg.SRI.Algorithm)
	assert.InDelta(t, DefaultWidth, cfg.Render.Width, 0)
	assert.Equal(t, DefaultPrecision, *cfg.Render.Precision)
}

func TestPartialSecurityOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte("security:\n  timeout: 2s\n  allow_http_localhost: true\n"))
	require.NoError(t, err)

	p := cfg.Policy()
	assert.Equal(t, 2*time.Second, p.Timeout)
	assert.True(t, p.AllowHTTPLocalhost)
	assert.Equal(t, []string{"https"}, p.AllowedProtocols)
	assert.Equal(t, security.DefaultMaxResponseSize, p.MaxResponseSize)
}

func TestPrecisionZeroIsKept(t *testing.T) {
	cfg, err := Parse([]byte("render:\n  precision: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, *cfg.Render.Precision)
}

func TestInvalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":        "geographies: [",
		"bad policy":      "security:\n  max_response_size: -1\n",
		"bad mode":        "sri:\n  mode: sometimes\n",
		"bad algorithm":   "sri:\n  algorithm: md5\n",
		"pin without url": "sri:\n  pins:\n    - hash: sha384-abc\n",
		"no name":         "geographies:\n  - url: https://example.com/a.json\n",
		"url and file":    "geographies:\n  - name: a\n    url: https://example.com/a.json\n    file: a.json\n",
		"duplicate alias": "geographies:\n  - name: a\n    url: https://example.com/a.json\n  - name: b\n    url: https://example.com/b.json\n    aliases: [A]\n",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.Equal(t, geoerr.KindConfiguration, geoerr.KindOf(err))
		})
	}
}

func TestRegistry(t *testing.T) {
	doc := `
sri:
  mode: strict
  algorithm: sha256
  pins:
    - url: https://example.com/a.json
      hash: sha256-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=
geographies:
  - name: b
    url: https://example.com/b.json
    sri: sha384-AAAA
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	r, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, sri.ModeStrict, r.Mode())

	rec, ok := r.Lookup("https://example.com/a.json")
	require.True(t, ok)
	assert.True(t, rec.Enforce)
	assert.Equal(t, sri.SHA256, rec.Algorithm)

	rec, ok = r.Lookup("https://EXAMPLE.com/b.json")
	require.True(t, ok)
	assert.True(t, rec.Enforce)
}
