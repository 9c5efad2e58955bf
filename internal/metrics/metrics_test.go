package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Fetch(OutcomeLoaded)
	m.Fetch(OutcomeCached)
	m.Fetch(OutcomeCached)
	m.Cache(true)
	m.Cache(false)
	m.Reject("SECURITY_ERROR", "timeout")
	m.Loaded(512, 20*time.Millisecond)
	m.Entries(3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Fetches.WithLabelValues(OutcomeCached)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheHits), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheMisses), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Rejections.WithLabelValues("SECURITY_ERROR", "timeout")), 0)
	assert.InDelta(t, 512, testutil.ToFloat64(m.BytesRead), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.CacheEntries), 0)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Fetch(OutcomeFailed)
		m.Cache(true)
		m.Reject("LOAD_ERROR", "")
		m.Loaded(1, time.Second)
		m.Entries(1)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).Fetch(OutcomeLoaded)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `geoguard_fetches_total{outcome="loaded"} 1`)
}
