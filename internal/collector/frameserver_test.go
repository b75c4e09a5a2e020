package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KabuSentinel/internal/model"
)

const multiFrame = `{
  "columns": [["7203.T","Close"],["7203.T","Dividends"],["Close","8306.T"]],
  "index": [1748822400000, 1748908800000],
  "data": [[2500.5, null, 1800.0], [null, 30.0, 1810.0]]
}`

const flatFrame = `{
  "columns": ["Close","Dividends"],
  "index": [1748822400000],
  "data": [[2500.5, 0.0]]
}`

func TestFrameServer_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/download", r.URL.Path)
		if r.URL.Query().Get("symbols") == "7203.T" {
			w.Write([]byte(flatFrame))
			return
		}
		w.Write([]byte(multiFrame))
	}))
	defer srv.Close()

	f := NewFrameServerFetcher(srv.URL, "secret", "")

	frame, err := f.Download(context.Background(), []string{"7203.T", "8306.T"}, DownloadOptions{Actions: true})
	require.NoError(t, err)
	require.Len(t, frame.Index, 2)

	c, ok := frame.Column(model.ColumnKey{Symbol: "7203.T", Field: model.FieldClose})
	require.True(t, ok)
	require.NotNil(t, c[0])
	assert.Equal(t, 2500.5, *c[0])
	assert.Nil(t, c[1])

	// field-first label order is recognised
	c, ok = frame.Column(model.ColumnKey{Symbol: "8306.T", Field: model.FieldClose})
	require.True(t, ok)
	assert.Equal(t, 1810.0, *c[1])

	frame, err = f.Download(context.Background(), []string{"7203.T"}, DownloadOptions{Actions: true})
	require.NoError(t, err)
	_, ok = frame.Column(model.ColumnKey{Field: model.FieldClose})
	assert.True(t, ok)
}

func TestFrameServer_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewFrameServerFetcher(srv.URL, "", "")
	_, err := f.Download(context.Background(), []string{"7203.T", "8306.T"}, DownloadOptions{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestFrameServer_Info(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9432.T", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"dividendYield": 4.1, "currentPrice": 150.5, "trailingAnnualDividendYield": null}`))
	}))
	defer srv.Close()

	info, err := NewFrameServerFetcher(srv.URL, "", "").Info(context.Background(), "9432.T")
	require.NoError(t, err)
	assert.Nil(t, info.TrailingAnnualDividendYield)
	require.NotNil(t, info.DividendYield)
	assert.InDelta(t, 0.041, *info.DividendYield, 1e-12)
	require.NotNil(t, info.CurrentPrice)
	assert.Equal(t, 150.5, *info.CurrentPrice)
}

func TestParseColumn_Invalid(t *testing.T) {
	_, err := parseColumn([]byte(`["a","b","c"]`))
	assert.Error(t, err)
	_, err = parseColumn([]byte(`42`))
	assert.Error(t, err)
}
