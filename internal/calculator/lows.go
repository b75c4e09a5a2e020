package calculator

import (
	"errors"
	"math"

	"KabuSentinel/internal/model"
)

// NoLowSentinel replaces the distance from a non-positive period low. It is
// large enough never to pass a near-low threshold.
const NoLowSentinel = 999.0

// Period is a trailing window measured in calendar days.
type Period struct {
	Label string
	Days  int
}

// Periods are the 13, 26 and 52 week windows, shortest first.
var Periods = []Period{
	{Label: "13w", Days: 91},
	{Label: "26w", Days: 182},
	{Label: "52w", Days: 365},
}

// WindowLow returns the minimum value over the trailing window ending at the
// last point. Points must be in chronological order. A window longer than the
// available history covers the whole series.
func WindowLow(points []model.Point, days int) (float64, error) {
	if len(points) == 0 {
		return 0, errors.New("no observations provided")
	}
	if days <= 0 {
		return 0, errors.New("window must be positive")
	}
	cutoff := points[len(points)-1].Time.AddDate(0, 0, -days)
	low := math.Inf(1)
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Time.Before(cutoff) {
			break
		}
		if points[i].Value < low {
			low = points[i].Value
		}
	}
	return low, nil
}

// PctFromLow returns how far current sits above low, in percent.
func PctFromLow(current, low float64) float64 {
	if low <= 0 {
		return NoLowSentinel
	}
	return (current - low) / low * 100
}

// PeriodLows computes the low and distance for every window in Periods,
// using the last point as the current price.
func PeriodLows(points []model.Point) (model.LowMetric, error) {
	if len(points) == 0 {
		return model.LowMetric{}, errors.New("no observations provided")
	}
	current := points[len(points)-1].Value
	m := model.LowMetric{Price: current, Lows: make([]model.PeriodLow, 0, len(Periods))}
	for _, p := range Periods {
		low, err := WindowLow(points, p.Days)
		if err != nil {
			return model.LowMetric{}, err
		}
		m.Lows = append(m.Lows, model.PeriodLow{
			Label:      p.Label,
			Days:       p.Days,
			Low:        low,
			PctFromLow: PctFromLow(current, low),
		})
	}
	return m, nil
}
