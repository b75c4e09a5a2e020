package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"KabuSentinel/internal/model"
)

// MockSource returns controllable fixed data for development and testing.
type MockSource struct {
	Series map[string]SymbolSeries
	Infos  map[string]*Info
	// FailDownload, when set, decides whether a download fails as a whole.
	FailDownload func(symbols []string) error
	// FailInfo lists symbols whose Info call errors.
	FailInfo map[string]bool

	mu        sync.Mutex
	Downloads [][]string
	InfoCalls []string
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Download(_ context.Context, symbols []string, opts DownloadOptions) (*model.Frame, error) {
	m.mu.Lock()
	m.Downloads = append(m.Downloads, append([]string(nil), symbols...))
	m.mu.Unlock()

	if m.FailDownload != nil {
		if err := m.FailDownload(symbols); err != nil {
			return nil, err
		}
	}
	return BuildFrame(symbols, m.Series, opts.Actions), nil
}

func (m *MockSource) Info(_ context.Context, symbol string) (*Info, error) {
	m.mu.Lock()
	m.InfoCalls = append(m.InfoCalls, symbol)
	m.mu.Unlock()

	if m.FailInfo[symbol] {
		return nil, fmt.Errorf("mock info failure for %s", symbol)
	}
	info, ok := m.Infos[symbol]
	if !ok {
		return nil, fmt.Errorf("mock %s: %w", symbol, ErrNoInfo)
	}
	return info, nil
}

// GenerateSeries builds count daily closes ending at end, drifting around basePrice.
func GenerateSeries(basePrice float64, count int, end time.Time) []model.Point {
	pts := make([]model.Point, count)
	for i := 0; i < count; i++ {
		pts[i] = model.Point{
			Time:  end.AddDate(0, 0, -(count - 1 - i)),
			Value: basePrice * (1 + float64(i-count/2)*0.001),
		}
	}
	return pts
}
