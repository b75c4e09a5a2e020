package screener

import (
	"context"
	"sort"

	"KabuSentinel/internal/calculator"
	"KabuSentinel/internal/collector"
	"KabuSentinel/internal/model"
	"KabuSentinel/internal/scan"
)

// EvaluateLows computes the period lows from a bulk pass window.
func EvaluateLows(w scan.Window) (model.LowMetric, bool) {
	m, err := calculator.PeriodLows(w.Prices)
	if err != nil {
		return model.LowMetric{}, false
	}
	return m, true
}

// LowResolver recovers one symbol with a single-symbol history download.
type LowResolver struct {
	Source          collector.BulkSource
	Period          string
	MinObservations int
}

func (r LowResolver) Resolve(ctx context.Context, symbol string) (model.LowMetric, bool, error) {
	frame, err := r.Source.Download(ctx, []string{symbol}, collector.DownloadOptions{Period: r.Period})
	if err != nil {
		return model.LowMetric{}, false, err
	}
	w, err := scan.Extract(frame, symbol, 1, false)
	if err != nil {
		return model.LowMetric{}, false, err
	}
	minObs := r.MinObservations
	if minObs <= 0 {
		minObs = scan.DefaultMinObservations
	}
	if len(w.Prices) < minObs {
		return model.LowMetric{}, false, nil
	}
	m, ok := EvaluateLows(w)
	return m, ok, nil
}

// NearLow reports whether any window sits within pct percent of its low.
func NearLow(m model.LowMetric, pct float64) bool {
	for _, l := range m.Lows {
		if l.PctFromLow < pct {
			return true
		}
	}
	return false
}

// yearPct is the sort key: distance from the 52 week low.
func yearPct(m model.LowMetric) float64 {
	if l, ok := m.Low("52w"); ok {
		return l.PctFromLow
	}
	return calculator.NoLowSentinel
}

// QualifyLows keeps rows near any period low, closest to the 52 week low first.
func QualifyLows(rows []model.LowEntry, nearLowPct float64) []model.LowEntry {
	out := make([]model.LowEntry, 0)
	for _, r := range rows {
		if NearLow(r.LowMetric, nearLowPct) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return yearPct(out[i].LowMetric) < yearPct(out[j].LowMetric) })
	return out
}

// lowRows joins metrics with their symbols in universe order, skipping
// symbols without data.
func lowRows(universe []model.Symbol, results map[string]*model.LowMetric) []model.LowEntry {
	out := make([]model.LowEntry, 0, len(universe))
	for _, sym := range universe {
		if m := results[sym.Ticker]; m != nil {
			out = append(out, model.LowEntry{Symbol: sym, LowMetric: *m})
		}
	}
	return out
}
