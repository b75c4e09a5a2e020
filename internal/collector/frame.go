package collector

import (
	"sort"
	"time"

	"KabuSentinel/internal/model"
)

// SymbolSeries is the raw history of one symbol before it is laid out in a frame.
type SymbolSeries struct {
	Close     []model.Point
	Dividends []model.Point
}

// BuildFrame lays per-symbol series out on a shared index. order lists the
// requested symbols; symbols missing from series get no columns. When exactly
// one symbol was requested the frame uses the flat layout.
func BuildFrame(order []string, series map[string]SymbolSeries, actions bool) *model.Frame {
	seen := make(map[time.Time]struct{})
	for _, sym := range order {
		s, ok := series[sym]
		if !ok {
			continue
		}
		for _, p := range s.Close {
			seen[p.Time] = struct{}{}
		}
		for _, p := range s.Dividends {
			seen[p.Time] = struct{}{}
		}
	}
	index := make([]time.Time, 0, len(seen))
	for t := range seen {
		index = append(index, t)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })

	pos := make(map[time.Time]int, len(index))
	for i, t := range index {
		pos[t] = i
	}

	frame := model.NewFrame(index)
	flat := len(order) == 1
	for _, sym := range order {
		s, ok := series[sym]
		if !ok {
			continue
		}
		key := func(field string) model.ColumnKey {
			if flat {
				return model.ColumnKey{Field: field}
			}
			return model.ColumnKey{Symbol: sym, Field: field}
		}

		closes := make([]*float64, len(index))
		for _, p := range s.Close {
			closes[pos[p.Time]] = model.Float(p.Value)
		}
		frame.Set(key(model.FieldClose), closes)

		if actions {
			divs := make([]*float64, len(index))
			for _, p := range s.Dividends {
				i := pos[p.Time]
				if divs[i] != nil {
					p.Value += *divs[i]
				}
				divs[i] = model.Float(p.Value)
			}
			frame.Set(key(model.FieldDividends), divs)
		}
	}
	return frame
}
