package calculator

import (
	"time"

	"KabuSentinel/internal/model"
)

// TrailingSum adds up the distributions paid within the year before asOf.
func TrailingSum(events []model.Point, asOf time.Time) float64 {
	from := asOf.AddDate(-1, 0, 0)
	sum := 0.0
	for _, e := range events {
		if e.Time.After(from) {
			sum += e.Value
		}
	}
	return sum
}

// TrailingYield returns the trailing dividend yield as a fraction. ok is false
// unless both the price and the distribution sum are positive.
func TrailingYield(prices, events []model.Point) (m model.DividendMetric, ok bool) {
	if len(prices) == 0 {
		return model.DividendMetric{}, false
	}
	last := prices[len(prices)-1]
	annual := TrailingSum(events, last.Time)
	if last.Value <= 0 || annual <= 0 {
		return model.DividendMetric{}, false
	}
	return model.DividendMetric{
		Price:          last.Value,
		Yield:          annual / last.Value,
		AnnualDividend: annual,
	}, true
}
