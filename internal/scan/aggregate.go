package scan

import (
	"context"
	"time"
)

// Merge overlays recovered metrics on the bulk pass results. A symbol appears
// at most once; a recovered metric replaces whatever the first map held.
func Merge[M any](primary, recovered map[string]*M) map[string]*M {
	out := make(map[string]*M, len(primary)+len(recovered))
	for k, v := range primary {
		out[k] = v
	}
	for k, v := range recovered {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// Result is the outcome of a full two-pass scan.
type Result[M any] struct {
	Metrics   map[string]*M // nil value = no data; absent = never resolved
	Failed    int           // symbols failed in the bulk pass
	Recovered int           // of those, resolved by the recovery pass
	Elapsed   time.Duration
}

// Pipeline chains the bulk pass and the recovery pass. Fallback may be nil.
type Pipeline[M any] struct {
	Batch    *BatchFetcher[M]
	Fallback *FallbackFetcher[M]
}

// Run scans symbols and merges both passes. When ctx ends early the partial
// result is returned with the error.
func (p *Pipeline[M]) Run(ctx context.Context, symbols []string) (Result[M], error) {
	start := time.Now()
	pass, err := p.Batch.Fetch(ctx, symbols)
	failed := pass.Failed()
	res := Result[M]{Metrics: pass.Results(), Failed: len(failed)}
	if err != nil {
		res.Elapsed = time.Since(start)
		return res, err
	}

	if p.Fallback != nil && len(failed) > 0 {
		recovered, err := p.Fallback.Recover(ctx, failed)
		res.Metrics = Merge(res.Metrics, recovered)
		res.Recovered = len(recovered)
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
