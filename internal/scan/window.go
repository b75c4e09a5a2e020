// Package scan implements the two-pass acquisition pipeline: a batched bulk
// pass over the whole universe, then a per-symbol recovery pass for the
// symbols the bulk pass could not handle.
package scan

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"KabuSentinel/internal/model"
)

var (
	// ErrMissingColumn means the frame has no column for the symbol.
	ErrMissingColumn = errors.New("missing column")
	// ErrEmptySeries means the price column holds no observations.
	ErrEmptySeries = errors.New("empty price series")
)

// Window is the clean history of one symbol, oldest first.
type Window struct {
	Prices    []model.Point
	Dividends []model.Point
}

// Extract pulls one symbol's closes (and dividends when requested) out of a
// bulk frame. batchLen is the number of symbols the frame was requested for:
// a single-symbol download is laid out flat and is read by field only.
func Extract(frame *model.Frame, symbol string, batchLen int, withDividends bool) (Window, error) {
	if frame == nil {
		return Window{}, fmt.Errorf("%s: %w", symbol, ErrMissingColumn)
	}
	key := func(field string) model.ColumnKey {
		if batchLen == 1 {
			return model.ColumnKey{Field: field}
		}
		return model.ColumnKey{Symbol: symbol, Field: field}
	}

	closes, ok := frame.Column(key(model.FieldClose))
	if !ok {
		return Window{}, fmt.Errorf("%s %s: %w", symbol, model.FieldClose, ErrMissingColumn)
	}
	var w Window
	w.Prices = points(frame, closes, false)
	if len(w.Prices) == 0 {
		return Window{}, fmt.Errorf("%s: %w", symbol, ErrEmptySeries)
	}

	if withDividends {
		divs, ok := frame.Column(key(model.FieldDividends))
		if !ok {
			return Window{}, fmt.Errorf("%s %s: %w", symbol, model.FieldDividends, ErrMissingColumn)
		}
		w.Dividends = points(frame, divs, true)
	}
	return w, nil
}

// points zips a column with the frame index, dropping nulls. Event columns
// also drop zero rows, which only mean "no event that day".
func points(frame *model.Frame, col []*float64, events bool) []model.Point {
	out := make([]model.Point, 0, len(col))
	for i, v := range col {
		if i >= len(frame.Index) || v == nil || math.IsNaN(*v) {
			continue
		}
		if events && *v == 0 {
			continue
		}
		out = append(out, model.Point{Time: frame.Index[i], Value: *v})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
