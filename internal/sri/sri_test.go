package sri

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoguard/internal/geoerr"
)

func TestDigestKnownVector(t *testing.T) {
	d, err := Digest(SHA256, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "sha256-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=", d)

	_, err = Digest("md5", []byte("hello"))
	assert.Equal(t, ReasonAlgorithm, geoerr.ReasonOf(err))
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"type":"Topology"}`)
	for _, alg := range []Algorithm{SHA256, SHA384, SHA512} {
		d, err := Digest(alg, payload)
		require.NoError(t, err)

		assert.NoError(t, Verify(payload, Record{Algorithm: alg, Hash: d, Enforce: true}), alg)

		err = Verify(append([]byte(" "), payload...), Record{Algorithm: alg, Hash: d, Enforce: true})
		require.Error(t, err)
		assert.Equal(t, geoerr.KindSecurity, geoerr.KindOf(err))
		assert.Equal(t, ReasonMismatch, geoerr.ReasonOf(err))
	}
}

func TestVerifyBareDigestAndUnenforced(t *testing.T) {
	rec := Record{Algorithm: SHA256, Hash: "LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=", Enforce: true}
	assert.NoError(t, Verify([]byte("hello"), rec))

	rec.Enforce = false
	assert.NoError(t, Verify([]byte("tampered"), rec))
}

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord("SHA384-abc=")
	require.NoError(t, err)
	assert.Equal(t, SHA384, rec.Algorithm)
	assert.Equal(t, "sha384-abc=", rec.Hash)
	assert.True(t, rec.Enforce)

	_, err = ParseRecord("nodigest")
	assert.Equal(t, ReasonMalformed, geoerr.ReasonOf(err))

	_, err = ParseRecord("md5-abc")
	assert.Equal(t, ReasonAlgorithm, geoerr.ReasonOf(err))
}

func TestRegistryResolve(t *testing.T) {
	pinned := Record{Algorithm: SHA256, Hash: "sha256-x", Enforce: true}
	r := NewRegistry(Pin{URL: "https://Example.com:443/a.json#frag", Record: pinned})
	assert.Equal(t, ModeKnown, r.Mode())

	rec, ok, err := r.Resolve("https://example.com/a.json", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pinned, rec)

	_, ok, err = r.Resolve("https://example.com/other.json", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	explicit := Record{Algorithm: SHA512, Hash: "sha512-y", Enforce: true}
	rec, ok, err = r.Resolve("https://example.com/a.json", &explicit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, explicit, rec)

	require.NoError(t, r.SetMode(ModeStrict))
	_, _, err = r.Resolve("https://example.com/other.json", nil)
	assert.Equal(t, ReasonMissing, geoerr.ReasonOf(err))

	require.NoError(t, r.SetMode(ModeDisabled))
	_, ok, err = r.Resolve("https://example.com/a.json", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, r.SetMode("sometimes"))
}

func TestRegistryStartsEmpty(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Pins())

	for _, u := range []string{
		"https://unpkg.com/world-atlas@1/world/110m.json",
		"https://cdn.jsdelivr.net/npm/world-atlas@2/countries-110m.json",
	} {
		_, ok, err := r.Resolve(u, nil)
		require.NoError(t, err)
		assert.False(t, ok, u)
	}

	require.NoError(t, r.SetMode(ModeStrict))
	_, _, err := r.Resolve("https://unpkg.com/world-atlas@1/world/110m.json", nil)
	assert.Equal(t, ReasonMissing, geoerr.ReasonOf(err))
}

func TestRegistryAddRemovePins(t *testing.T) {
	r := NewRegistry()
	r.Add("https://b.example/x.json", Record{Algorithm: SHA256, Hash: "sha256-b"})
	r.Add("https://a.example/x.json", Record{Algorithm: SHA256, Hash: "sha256-a"})

	pins := r.Pins()
	require.Len(t, pins, 2)
	assert.Equal(t, "https://a.example/x.json", pins[0].URL)

	r.Remove("https://a.example/x.json")
	_, ok := r.Lookup("https://a.example/x.json")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "https://example.com/a.json?v=1", Key("HTTPS://EXAMPLE.com:443/a.json?v=1#top"))
	assert.Equal(t, "http://localhost:9999/x.json", Key("http://LOCALHOST:9999/x.json"))
	assert.Equal(t, "https://[::1]:8443/x", Key("https://[::1]:8443/x"))
	assert.Equal(t, "not a url", Key(" not a url "))
}

type mapDownloader map[string][]byte

func (m mapDownloader) Download(_ context.Context, u string) ([]byte, error) {
	if b, ok := m[u]; ok {
		return b, nil
	}
	return nil, errors.New("not found")
}

func TestGenerateForURLs(t *testing.T) {
	d := mapDownloader{
		"https://a.example/1.json": []byte("hello"),
		"https://a.example/2.json": []byte("world"),
	}
	urls := []string{"https://a.example/1.json", "https://a.example/missing.json", "https://a.example/2.json"}

	out := GenerateForURLs(context.Background(), d, urls, SHA256, 2)
	require.Len(t, out, 3)

	assert.Equal(t, urls[0], out[0].Pin.URL)
	assert.NoError(t, out[0].Err)
	assert.Equal(t, "sha256-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=", out[0].Pin.Hash)
	assert.True(t, out[0].Pin.Enforce)

	assert.Equal(t, urls[1], out[1].Pin.URL)
	assert.Error(t, out[1].Err)

	assert.NoError(t, Verify([]byte("world"), out[2].Pin.Record))
}
