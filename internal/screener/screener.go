// Package screener runs the dividend and low-price scans over a universe and
// ranks what qualifies.
package screener

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"KabuSentinel/internal/collector"
	"KabuSentinel/internal/metrics"
	"KabuSentinel/internal/model"
	"KabuSentinel/internal/scan"
)

const (
	DefaultThreshold  = 0.05
	DefaultNearLowPct = 1.0
)

// Config is the static scan configuration.
type Config struct {
	Threshold       float64 // minimum qualifying yield, as a fraction
	NearLowPct      float64 // maximum distance from a period low, in percent
	BatchSize       int
	BatchDelay      time.Duration
	RequestDelay    time.Duration
	MinObservations int
	Period          string
}

// DefaultConfig returns the stock scan settings.
func DefaultConfig() Config {
	return Config{
		Threshold:       DefaultThreshold,
		NearLowPct:      DefaultNearLowPct,
		BatchSize:       scan.DefaultBatchSize,
		BatchDelay:      scan.DefaultBatchDelay,
		RequestDelay:    scan.DefaultRequestDelay,
		MinObservations: scan.DefaultMinObservations,
		Period:          "1y",
	}
}

// DividendResult is a ranked dividend scan.
type DividendResult struct {
	Entries []model.DividendEntry
	Summary model.ScanSummary
}

// LowResult is a low-price check. Rows holds every symbol with data in
// universe order; Alerts the qualifying ones, ranked.
type LowResult struct {
	Rows    []model.LowEntry
	Alerts  []model.LowEntry
	Summary model.ScanSummary
}

// Screener wires the scan pipeline to a market data source.
type Screener struct {
	Source  collector.Source
	Config  Config
	Metrics *metrics.Registry
	Sleep   scan.SleepFunc // nil sleeps for real
}

// New creates a screener. Zero config fields fall back to the defaults.
func New(src collector.Source, cfg Config, m *metrics.Registry) *Screener {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.NearLowPct <= 0 {
		cfg.NearLowPct = def.NearLowPct
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = def.MinObservations
	}
	if cfg.Period == "" {
		cfg.Period = def.Period
	}
	return &Screener{Source: src, Config: cfg, Metrics: m}
}

// ScanDividends finds the symbols whose trailing yield meets the threshold.
func (s *Screener) ScanDividends(ctx context.Context, universe []model.Symbol) (*DividendResult, error) {
	const name = "dividend"
	log.Info().Int("symbols", len(universe)).Float64("threshold", s.Config.Threshold).Msg("starting dividend scan")

	p := &scan.Pipeline[model.DividendMetric]{
		Batch: &scan.BatchFetcher[model.DividendMetric]{
			Name:            name,
			Source:          s.Source,
			Options:         collector.DownloadOptions{Period: s.Config.Period, Actions: true},
			BatchSize:       s.Config.BatchSize,
			BatchDelay:      s.Config.BatchDelay,
			MinObservations: s.Config.MinObservations,
			Evaluate:        EvaluateDividend,
			Sleep:           s.Sleep,
			Metrics:         s.Metrics,
		},
		Fallback: &scan.FallbackFetcher[model.DividendMetric]{
			Name:         name,
			Resolver:     DividendResolver{Source: s.Source},
			RequestDelay: s.Config.RequestDelay,
			Sleep:        s.Sleep,
			Metrics:      s.Metrics,
		},
	}
	res, err := p.Run(ctx, model.Tickers(universe))
	if err != nil {
		return nil, fmt.Errorf("dividend scan: %w", err)
	}

	entries := QualifyDividends(universe, res.Metrics, s.Config.Threshold)
	summary := summarize(len(universe), len(entries), res.Failed, res.Recovered, res.Elapsed)
	s.Metrics.ScanDone(name, res.Elapsed, len(entries))
	log.Info().Int("qualified", len(entries)).Int("failed", res.Failed).Int("recovered", res.Recovered).
		Str("duration", summary.Duration()).Msg("dividend scan done")
	return &DividendResult{Entries: entries, Summary: summary}, nil
}

// CheckLows computes period lows for the watchlist and flags the near ones.
func (s *Screener) CheckLows(ctx context.Context, watchlist []model.Symbol) (*LowResult, error) {
	const name = "lows"
	log.Info().Int("symbols", len(watchlist)).Float64("near_low_pct", s.Config.NearLowPct).Msg("starting low check")

	p := &scan.Pipeline[model.LowMetric]{
		Batch: &scan.BatchFetcher[model.LowMetric]{
			Name:            name,
			Source:          s.Source,
			Options:         collector.DownloadOptions{Period: s.Config.Period},
			BatchSize:       s.Config.BatchSize,
			BatchDelay:      s.Config.BatchDelay,
			MinObservations: s.Config.MinObservations,
			Evaluate:        EvaluateLows,
			Sleep:           s.Sleep,
			Metrics:         s.Metrics,
		},
		Fallback: &scan.FallbackFetcher[model.LowMetric]{
			Name: name,
			Resolver: LowResolver{
				Source:          s.Source,
				Period:          s.Config.Period,
				MinObservations: s.Config.MinObservations,
			},
			RequestDelay: s.Config.RequestDelay,
			Sleep:        s.Sleep,
			Metrics:      s.Metrics,
		},
	}
	res, err := p.Run(ctx, model.Tickers(watchlist))
	if err != nil {
		return nil, fmt.Errorf("low check: %w", err)
	}

	rows := lowRows(watchlist, res.Metrics)
	alerts := QualifyLows(rows, s.Config.NearLowPct)
	summary := summarize(len(watchlist), len(alerts), res.Failed, res.Recovered, res.Elapsed)
	s.Metrics.ScanDone(name, res.Elapsed, len(alerts))
	log.Info().Int("rows", len(rows)).Int("alerts", len(alerts)).Msg("low check done")
	return &LowResult{Rows: rows, Alerts: alerts, Summary: summary}, nil
}

func summarize(total, qualified, failed, recovered int, elapsed time.Duration) model.ScanSummary {
	return model.ScanSummary{
		TotalScanned: total,
		Qualified:    qualified,
		Failed:       failed,
		Recovered:    recovered,
		Elapsed:      elapsed,
	}
}
