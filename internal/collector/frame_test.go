package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KabuSentinel/internal/model"
)

func TestBuildFrame_SingleSymbolIsFlat(t *testing.T) {
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, jst)
	series := map[string]SymbolSeries{
		"7203.T": {Close: GenerateSeries(2500, 5, end)},
	}

	frame := BuildFrame([]string{"7203.T"}, series, true)
	_, ok := frame.Column(model.ColumnKey{Field: model.FieldClose})
	assert.True(t, ok)
	_, ok = frame.Column(model.ColumnKey{Symbol: "7203.T", Field: model.FieldClose})
	assert.False(t, ok)
	_, ok = frame.Column(model.ColumnKey{Field: model.FieldDividends})
	assert.True(t, ok)
}

func TestBuildFrame_MultiSymbolIsKeyedOnUnionIndex(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2025, 6, day, 0, 0, 0, 0, jst) }
	series := map[string]SymbolSeries{
		"A.T": {Close: []model.Point{{Time: d(2), Value: 10}, {Time: d(3), Value: 11}}},
		"B.T": {
			Close:     []model.Point{{Time: d(3), Value: 20}, {Time: d(4), Value: 21}},
			Dividends: []model.Point{{Time: d(4), Value: 1.5}},
		},
	}

	frame := BuildFrame([]string{"A.T", "B.T", "MISSING.T"}, series, true)
	require.Len(t, frame.Index, 3)

	a, ok := frame.Column(model.ColumnKey{Symbol: "A.T", Field: model.FieldClose})
	require.True(t, ok)
	assert.NotNil(t, a[0])
	assert.Nil(t, a[2])

	divs, ok := frame.Column(model.ColumnKey{Symbol: "B.T", Field: model.FieldDividends})
	require.True(t, ok)
	require.NotNil(t, divs[2])
	assert.Equal(t, 1.5, *divs[2])

	_, ok = frame.Column(model.ColumnKey{Symbol: "MISSING.T", Field: model.FieldClose})
	assert.False(t, ok)
}

func TestBuildFrame_WithoutActions(t *testing.T) {
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, jst)
	series := map[string]SymbolSeries{"A.T": {Close: GenerateSeries(100, 3, end)}, "B.T": {Close: GenerateSeries(100, 3, end)}}

	frame := BuildFrame([]string{"A.T", "B.T"}, series, false)
	_, ok := frame.Column(model.ColumnKey{Symbol: "A.T", Field: model.FieldDividends})
	assert.False(t, ok)
}
