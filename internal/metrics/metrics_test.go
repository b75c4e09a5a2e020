package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.ChunkDone("dividend", true)
		r.SymbolOutcome("dividend", "ok")
		r.FallbackDone("dividend", false)
		r.ScanDone("dividend", time.Second, 3)
		r.SetPortfolioValue(1)
		r.NotifyFailed("lows")
	})
}

func TestCounters(t *testing.T) {
	r := NewRegistry()
	r.ChunkDone("dividend", true)
	r.ChunkDone("dividend", true)
	r.ChunkDone("dividend", false)
	r.SymbolOutcome("lows", "no_data")
	r.ScanDone("dividend", 90*time.Second, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Chunks.WithLabelValues("dividend", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Chunks.WithLabelValues("dividend", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SymbolOutcomes.WithLabelValues("lows", "no_data")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.Qualified.WithLabelValues("dividend")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.SetPortfolioValue(12345)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "kabusentinel_portfolio_value_yen 12345"))
}
