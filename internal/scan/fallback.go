package scan

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"KabuSentinel/internal/metrics"
)

// Resolver recovers one symbol's metric with a single-symbol request. ok is
// false when the response holds nothing usable.
type Resolver[M any] interface {
	Resolve(ctx context.Context, symbol string) (m M, ok bool, err error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc[M any] func(ctx context.Context, symbol string) (M, bool, error)

func (f ResolverFunc[M]) Resolve(ctx context.Context, symbol string) (M, bool, error) {
	return f(ctx, symbol)
}

// FallbackFetcher runs the recovery pass: one request per symbol, in order,
// with RequestDelay after each. Failures are absorbed.
type FallbackFetcher[M any] struct {
	Name         string
	Resolver     Resolver[M]
	RequestDelay time.Duration
	Sleep        SleepFunc
	Metrics      *metrics.Registry
}

// Recover returns the metrics it could resolve, keyed by ticker. Symbols that
// fail again are simply absent. Only a cancelled context ends it early.
func (f *FallbackFetcher[M]) Recover(ctx context.Context, symbols []string) (map[string]*M, error) {
	sleep := f.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	out := make(map[string]*M)
	if len(symbols) == 0 {
		return out, nil
	}
	log.Info().Str("scan", f.Name).Int("symbols", len(symbols)).Msg("recovering failed symbols individually")

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		m, ok, err := f.Resolver.Resolve(ctx, sym)
		switch {
		case err != nil:
			log.Debug().Str("scan", f.Name).Str("symbol", sym).Err(err).Msg("recovery failed")
			f.Metrics.FallbackDone(f.Name, false)
		case !ok:
			f.Metrics.FallbackDone(f.Name, false)
		default:
			out[sym] = &m
			f.Metrics.FallbackDone(f.Name, true)
		}
		if err := sleep(ctx, f.RequestDelay); err != nil {
			return out, err
		}
	}
	log.Info().Str("scan", f.Name).Int("recovered", len(out)).Int("attempted", len(symbols)).Msg("recovery pass done")
	return out, nil
}
