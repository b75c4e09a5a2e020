package scan

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"KabuSentinel/internal/collector"
	"KabuSentinel/internal/metrics"
	"KabuSentinel/internal/model"
)

const (
	DefaultBatchSize       = 100
	DefaultBatchDelay      = 2 * time.Second
	DefaultRequestDelay    = 500 * time.Millisecond
	DefaultMinObservations = 10
)

// Evaluator computes a metric from a symbol's window. ok is false when the
// inputs cannot produce one, which counts as no data.
type Evaluator[M any] func(Window) (m M, ok bool)

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// BatchFetcher runs the bulk pass: consecutive chunks of at most BatchSize
// symbols, one download per chunk, chunks strictly one after another.
type BatchFetcher[M any] struct {
	Name            string // scan label for logs and metrics
	Source          collector.BulkSource
	Options         collector.DownloadOptions
	BatchSize       int
	BatchDelay      time.Duration
	MinObservations int
	Evaluate        Evaluator[M]
	Sleep           SleepFunc
	Metrics         *metrics.Registry
}

// Chunks splits symbols into consecutive slices of at most size elements.
func Chunks(symbols []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[start:end])
	}
	return out
}

// Fetch runs the bulk pass over symbols. Download and extraction failures are
// recorded per symbol and never abort the pass; only a cancelled context
// stops it early, in which case the unvisited symbols are left out.
func (b *BatchFetcher[M]) Fetch(ctx context.Context, symbols []string) (Pass[M], error) {
	sleep := b.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	minObs := b.MinObservations
	if minObs <= 0 {
		minObs = DefaultMinObservations
	}

	chunks := Chunks(symbols, b.BatchSize)
	pass := Pass[M]{Outcomes: make([]Outcome[M], 0, len(symbols))}
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return pass, err
		}
		log.Info().Str("scan", b.Name).Int("batch", i+1).Int("batches", len(chunks)).
			Int("size", len(chunk)).Msg("fetching batch")

		frame, err := b.Source.Download(ctx, chunk, b.Options)
		if err != nil {
			log.Warn().Str("scan", b.Name).Int("batch", i+1).Err(err).Msg("batch download failed")
			b.Metrics.ChunkDone(b.Name, false)
			for _, sym := range chunk {
				pass.Outcomes = append(pass.Outcomes, Outcome[M]{Ticker: sym, Status: StatusChunkFatal, Err: err})
				b.Metrics.SymbolOutcome(b.Name, StatusChunkFatal.String())
			}
		} else {
			b.Metrics.ChunkDone(b.Name, true)
			for _, sym := range chunk {
				o := b.evaluate(frame, sym, len(chunk), minObs)
				pass.Outcomes = append(pass.Outcomes, o)
				b.Metrics.SymbolOutcome(b.Name, o.Status.String())
			}
		}

		if i < len(chunks)-1 {
			if err := sleep(ctx, b.BatchDelay); err != nil {
				return pass, err
			}
		}
	}
	return pass, nil
}

// evaluate turns one symbol of a downloaded chunk into an outcome.
func (b *BatchFetcher[M]) evaluate(frame *model.Frame, sym string, batchLen, minObs int) Outcome[M] {
	w, err := Extract(frame, sym, batchLen, b.Options.Actions)
	if err != nil {
		log.Debug().Str("scan", b.Name).Str("symbol", sym).Err(err).Msg("extraction failed")
		return Outcome[M]{Ticker: sym, Status: StatusSymbolFatal, Err: err}
	}
	if len(w.Prices) < minObs {
		return Outcome[M]{Ticker: sym, Status: StatusNoData}
	}
	m, ok := b.Evaluate(w)
	if !ok {
		return Outcome[M]{Ticker: sym, Status: StatusNoData}
	}
	return Outcome[M]{Ticker: sym, Status: StatusOK, Metric: &m}
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
