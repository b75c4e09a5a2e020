package portfolio

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KabuSentinel/internal/collector"
	"KabuSentinel/internal/model"
)

func closes(prices ...float64) collector.SymbolSeries {
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	pts := make([]model.Point, len(prices))
	for i, p := range prices {
		pts[i] = model.Point{Time: end.AddDate(0, 0, i-len(prices)+1), Value: p}
	}
	return collector.SymbolSeries{Close: pts}
}

var holdings = []model.Holding{
	{Code: "2674", Name: "ハードオフコーポレーション", Shares: 15000},
	{Code: "8291", Name: "日産東京販売ホールディングス", Shares: 50000},
	{Code: "5869", Name: "早稲田学習研究会", Shares: 20000},
}

func TestValue_TotalsAndMissingQuote(t *testing.T) {
	src := &collector.MockSource{Series: map[string]collector.SymbolSeries{
		"2674.T": closes(1990, 2001.5),
		"8291.T": closes(480),
	}}
	v, err := NewValuer(src, holdings, "", nil)
	require.NoError(t, err)

	val, err := v.Value(context.Background(), "前場")
	require.NoError(t, err)

	require.Len(t, val.Positions, 3)
	assert.True(t, val.Positions[0].Value.Equal(decimal.RequireFromString("30022500")))
	assert.True(t, val.Positions[1].Value.Equal(decimal.NewFromInt(24000000)))
	assert.True(t, val.Positions[2].Price.IsZero())
	assert.True(t, val.Total.Equal(decimal.RequireFromString("54022500")))
	assert.Equal(t, "前場", val.Session)
	assert.Len(t, src.Downloads, 1, "one bulk request for all holdings")

	_, ok := val.Change()
	assert.False(t, ok)
}

func TestValue_TracksChangeAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio_state.json")
	src := &collector.MockSource{Series: map[string]collector.SymbolSeries{"2674.T": closes(2000)}}

	v, err := NewValuer(src, holdings[:1], path, nil)
	require.NoError(t, err)
	_, err = v.Value(context.Background(), "前場")
	require.NoError(t, err)

	src.Series["2674.T"] = closes(2010)
	val, err := v.Value(context.Background(), "後場")
	require.NoError(t, err)

	require.NotNil(t, val.Previous)
	assert.Equal(t, "前場", val.Previous.Session)
	change, ok := val.Change()
	require.True(t, ok)
	assert.True(t, change.Equal(decimal.NewFromInt(150000)))

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "後場", snap.Session)
	assert.True(t, snap.Total.Equal(decimal.NewFromInt(30150000)))
}

func TestNewValuer_RequiresHoldings(t *testing.T) {
	_, err := NewValuer(&collector.MockSource{}, nil, "", nil)
	assert.Error(t, err)
}

func TestLoadSnapshot_Missing(t *testing.T) {
	snap, err := LoadSnapshot(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Nil(t, snap)
}
