package screener

import (
	"context"
	"sort"

	"KabuSentinel/internal/calculator"
	"KabuSentinel/internal/collector"
	"KabuSentinel/internal/model"
	"KabuSentinel/internal/scan"
)

// EvaluateDividend computes the trailing yield from a bulk pass window.
func EvaluateDividend(w scan.Window) (model.DividendMetric, bool) {
	return calculator.TrailingYield(w.Prices, w.Dividends)
}

// DividendResolver recovers a yield from the quote fundamentals of one symbol.
type DividendResolver struct {
	Source collector.InfoSource
}

func (r DividendResolver) Resolve(ctx context.Context, symbol string) (model.DividendMetric, bool, error) {
	info, err := r.Source.Info(ctx, symbol)
	if err != nil {
		return model.DividendMetric{}, false, err
	}
	m, ok := ResolveDividend(info)
	return m, ok, nil
}

// ResolveDividend picks the first positive of the trailing annual yield, the
// forward yield, and the trailing rate over the price.
func ResolveDividend(info *collector.Info) (model.DividendMetric, bool) {
	if info == nil {
		return model.DividendMetric{}, false
	}
	price, hasPrice := positive(info.RegularMarketPrice)
	if !hasPrice {
		price, hasPrice = positive(info.CurrentPrice)
	}
	rate, hasRate := positive(info.TrailingAnnualDividendRate)

	yield, ok := positive(info.TrailingAnnualDividendYield)
	if !ok {
		yield, ok = positive(info.DividendYield)
	}
	if !ok && hasRate && hasPrice {
		yield, ok = rate/price, true
	}
	if !ok {
		return model.DividendMetric{}, false
	}
	return model.DividendMetric{Price: price, Yield: yield, AnnualDividend: rate}, true
}

func positive(v *float64) (float64, bool) {
	if v == nil || *v <= 0 {
		return 0, false
	}
	return *v, true
}

// QualifyDividends keeps the symbols at or above threshold, highest yield
// first. Equal yields keep universe order.
func QualifyDividends(universe []model.Symbol, results map[string]*model.DividendMetric, threshold float64) []model.DividendEntry {
	out := make([]model.DividendEntry, 0)
	for _, sym := range universe {
		m := results[sym.Ticker]
		if m == nil || m.Yield < threshold {
			continue
		}
		out = append(out, model.DividendEntry{Symbol: sym, DividendMetric: *m})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Yield > out[j].Yield })
	return out
}
