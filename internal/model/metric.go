package model

// DividendMetric holds the computed yield facts for one symbol.
type DividendMetric struct {
	Price          float64
	Yield          float64 // fraction, 0.05 == 5%
	AnnualDividend float64
}

// PeriodLow is the low of one trailing window and the distance of the current
// price from it, in percent.
type PeriodLow struct {
	Label      string
	Days       int
	Low        float64
	PctFromLow float64
}

// LowMetric holds the current price and its period lows (13w, 26w, 52w).
type LowMetric struct {
	Price float64
	Lows  []PeriodLow
}

// Low returns the period low with the given label.
func (m LowMetric) Low(label string) (PeriodLow, bool) {
	for _, l := range m.Lows {
		if l.Label == label {
			return l, true
		}
	}
	return PeriodLow{}, false
}

// DividendEntry is a qualified dividend scan row.
type DividendEntry struct {
	Symbol
	DividendMetric
}

// LowEntry is a low-price check row.
type LowEntry struct {
	Symbol
	LowMetric
}
