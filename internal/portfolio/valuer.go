// Package portfolio marks the configured holdings to market.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"KabuSentinel/internal/collector"
	"KabuSentinel/internal/metrics"
	"KabuSentinel/internal/model"
	"KabuSentinel/internal/scan"
)

// Valuer values a fixed set of holdings and remembers the last total.
type Valuer struct {
	mu        sync.Mutex
	source    collector.BulkSource
	holdings  []model.Holding
	statePath string
	metrics   *metrics.Registry
	now       func() time.Time
}

// NewValuer creates a Valuer. An empty statePath disables change tracking.
func NewValuer(src collector.BulkSource, holdings []model.Holding, statePath string, m *metrics.Registry) (*Valuer, error) {
	if len(holdings) == 0 {
		return nil, errors.New("portfolio has no holdings")
	}
	return &Valuer{
		source:    src,
		holdings:  append([]model.Holding(nil), holdings...),
		statePath: statePath,
		metrics:   m,
		now:       time.Now,
	}, nil
}

func lastClose(w scan.Window) (float64, bool) {
	p := w.Prices[len(w.Prices)-1].Value
	return p, p > 0
}

// Value fetches the latest close of every holding in one request. A holding
// without a quote is kept with a zero price.
func (v *Valuer) Value(ctx context.Context, session string) (*model.Valuation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	tickers := make([]string, len(v.holdings))
	for i, h := range v.holdings {
		tickers[i] = h.Ticker()
	}
	batch := &scan.BatchFetcher[float64]{
		Name:            "portfolio",
		Source:          v.source,
		Options:         collector.DownloadOptions{Period: "5d"},
		BatchSize:       len(tickers),
		MinObservations: 1,
		Evaluate:        lastClose,
		Metrics:         v.metrics,
	}
	pass, err := batch.Fetch(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("portfolio prices: %w", err)
	}
	prices := pass.Results()

	val := &model.Valuation{Session: session, At: v.now(), Total: decimal.Zero}
	for _, h := range v.holdings {
		pos := model.Position{Holding: h, Price: decimal.Zero, Value: decimal.Zero}
		if p := prices[h.Ticker()]; p != nil {
			pos.Price = decimal.NewFromFloat(*p)
			pos.Value = pos.Price.Mul(decimal.NewFromInt(h.Shares))
		} else {
			log.Warn().Str("symbol", h.Ticker()).Msg("no price for holding")
		}
		val.Positions = append(val.Positions, pos)
		val.Total = val.Total.Add(pos.Value)
	}

	if v.statePath != "" {
		prev, err := LoadSnapshot(v.statePath)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load portfolio state")
		}
		val.Previous = prev
		snap := &model.Snapshot{Session: session, Total: val.Total, At: val.At}
		if err := SaveSnapshot(v.statePath, snap); err != nil {
			log.Error().Err(err).Msg("failed to save portfolio state")
		}
	}

	v.metrics.SetPortfolioValue(val.Total.InexactFloat64())
	log.Info().Str("session", session).Str("total", val.Total.StringFixed(0)).Msg("portfolio valued")
	return val, nil
}
