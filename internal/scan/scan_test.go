package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KabuSentinel/internal/calculator"
	"KabuSentinel/internal/collector"
	"KabuSentinel/internal/model"
)

var end = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func dividendEval(w Window) (model.DividendMetric, bool) {
	return calculator.TrailingYield(w.Prices, w.Dividends)
}

// universe builds n symbols with 30 closes each and one dividend. Every fifth
// symbol pays nothing.
func universe(n int) ([]string, map[string]collector.SymbolSeries) {
	syms := make([]string, n)
	series := make(map[string]collector.SymbolSeries, n)
	for i := 0; i < n; i++ {
		sym := fmt.Sprintf("%04d.T", 1000+i)
		syms[i] = sym
		s := collector.SymbolSeries{Close: collector.GenerateSeries(100+float64(i), 30, end)}
		if i%5 != 0 {
			s.Dividends = []model.Point{{Time: end.AddDate(0, -3, 0), Value: float64(i%7 + 1)}}
		}
		series[sym] = s
	}
	return syms, series
}

type sleepCounter struct {
	calls []time.Duration
}

func (s *sleepCounter) Sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func newBatch(src collector.BulkSource, size int, sleeper *sleepCounter) *BatchFetcher[model.DividendMetric] {
	return &BatchFetcher[model.DividendMetric]{
		Name:       "test",
		Source:     src,
		Options:    collector.DownloadOptions{Period: "1y", Actions: true},
		BatchSize:  size,
		BatchDelay: 2 * time.Second,
		Evaluate:   dividendEval,
		Sleep:      sleeper.Sleep,
	}
}

func TestChunks(t *testing.T) {
	syms, _ := universe(250)
	chunks := Chunks(syms, 100)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)
	assert.Equal(t, syms[100], chunks[1][0])

	assert.Empty(t, Chunks(nil, 10))
}

func TestFetch_ThreeChunksTwoSleeps(t *testing.T) {
	syms, series := universe(250)
	src := &collector.MockSource{Series: series}
	sleeper := &sleepCounter{}

	pass, err := newBatch(src, 100, sleeper).Fetch(context.Background(), syms)
	require.NoError(t, err)

	assert.Len(t, src.Downloads, 3)
	assert.Equal(t, []int{100, 100, 50}, []int{len(src.Downloads[0]), len(src.Downloads[1]), len(src.Downloads[2])})
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.calls)
	assert.Len(t, pass.Outcomes, 250)
	assert.Empty(t, pass.Failed())
}

func TestFetch_PartitionInvariance(t *testing.T) {
	syms, series := universe(20)
	// short history: no data whatever the partition
	series[syms[3]] = collector.SymbolSeries{
		Close:     collector.GenerateSeries(50, 5, end),
		Dividends: []model.Point{{Time: end, Value: 10}},
	}

	var baseline map[string]*model.DividendMetric
	for _, size := range []int{1, 7, len(syms)} {
		src := &collector.MockSource{Series: series}
		pass, err := newBatch(src, size, &sleepCounter{}).Fetch(context.Background(), syms)
		require.NoError(t, err)
		results := pass.Results()
		require.Len(t, results, len(syms), "batch size %d", size)
		if baseline == nil {
			baseline = results
			continue
		}
		for _, sym := range syms {
			assert.Equal(t, baseline[sym], results[sym], "batch size %d symbol %s", size, sym)
		}
	}
	assert.Nil(t, baseline[syms[3]])
	assert.Nil(t, baseline[syms[0]], "no dividend is no data, not zero yield")
	require.NotNil(t, baseline[syms[1]])
	assert.Greater(t, baseline[syms[1]].Yield, 0.0)
}

func TestFetch_ChunkFatalIsolation(t *testing.T) {
	syms, series := universe(21)
	src := &collector.MockSource{
		Series: series,
		FailDownload: func(chunk []string) error {
			for _, s := range chunk {
				if s == syms[8] {
					return errors.New("upstream 503")
				}
			}
			return nil
		},
	}

	pass, err := newBatch(src, 7, &sleepCounter{}).Fetch(context.Background(), syms)
	require.NoError(t, err)

	assert.Equal(t, syms[7:14], pass.Failed())
	assert.Equal(t, 7, pass.Count(StatusChunkFatal))
	results := pass.Results()
	for _, s := range append(append([]string{}, syms[:7]...), syms[14:]...) {
		_, ok := results[s]
		assert.True(t, ok, s)
	}
	require.NotNil(t, results[syms[1]])
}

func TestFetch_NoDataIsNotFailed(t *testing.T) {
	syms, series := universe(4)
	series[syms[1]] = collector.SymbolSeries{Close: collector.GenerateSeries(80, 9, end)}
	delete(series, syms[2]) // absent from the download: missing column

	pass, err := newBatch(&collector.MockSource{Series: series}, 10, &sleepCounter{}).Fetch(context.Background(), syms)
	require.NoError(t, err)

	assert.Equal(t, StatusNoData, pass.Outcomes[1].Status)
	assert.Equal(t, StatusSymbolFatal, pass.Outcomes[2].Status)
	assert.ErrorIs(t, pass.Outcomes[2].Err, ErrMissingColumn)
	assert.Equal(t, []string{syms[2]}, pass.Failed())

	results := pass.Results()
	v, ok := results[syms[1]]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestFetch_CancelledDuringSleep(t *testing.T) {
	syms, series := universe(30)
	ctx, cancel := context.WithCancel(context.Background())
	b := newBatch(&collector.MockSource{Series: series}, 10, &sleepCounter{})
	b.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	pass, err := b.Fetch(ctx, syms)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, pass.Outcomes, 10)
}

func TestExtract_Layouts(t *testing.T) {
	idx := []time.Time{end.AddDate(0, 0, -2), end.AddDate(0, 0, -1), end}

	flat := model.NewFrame(idx)
	flat.Set(model.ColumnKey{Field: model.FieldClose}, []*float64{model.Float(10), nil, model.Float(12)})
	flat.Set(model.ColumnKey{Field: model.FieldDividends}, []*float64{model.Float(0), model.Float(1.5), nil})

	w, err := Extract(flat, "7203.T", 1, true)
	require.NoError(t, err)
	assert.Len(t, w.Prices, 2)
	assert.Equal(t, 12.0, w.Prices[1].Value)
	require.Len(t, w.Dividends, 1)
	assert.Equal(t, 1.5, w.Dividends[0].Value)

	_, err = Extract(flat, "7203.T", 2, false)
	assert.ErrorIs(t, err, ErrMissingColumn)

	keyed := model.NewFrame(idx)
	keyed.Set(model.ColumnKey{Symbol: "7203.T", Field: model.FieldClose}, []*float64{nil, nil, nil})
	keyed.Set(model.ColumnKey{Symbol: "8306.T", Field: model.FieldClose}, []*float64{model.Float(1), nil, nil})

	_, err = Extract(keyed, "7203.T", 2, false)
	assert.ErrorIs(t, err, ErrEmptySeries)
	_, err = Extract(keyed, "8306.T", 2, true)
	assert.ErrorIs(t, err, ErrMissingColumn)
	w, err = Extract(keyed, "8306.T", 2, false)
	require.NoError(t, err)
	assert.Len(t, w.Prices, 1)
}

func TestFallback_SequentialAndAbsorbing(t *testing.T) {
	var calls []string
	resolver := ResolverFunc[float64](func(_ context.Context, sym string) (float64, bool, error) {
		calls = append(calls, sym)
		switch {
		case strings.HasPrefix(sym, "ERR"):
			return 0, false, errors.New("boom")
		case strings.HasPrefix(sym, "NONE"):
			return 0, false, nil
		}
		return 0.07, true, nil
	})
	sleeper := &sleepCounter{}
	f := &FallbackFetcher[float64]{Name: "test", Resolver: resolver, RequestDelay: 500 * time.Millisecond, Sleep: sleeper.Sleep}

	out, err := f.Recover(context.Background(), []string{"A.T", "ERR.T", "NONE.T", "B.T"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A.T", "ERR.T", "NONE.T", "B.T"}, calls)
	assert.Len(t, sleeper.calls, 4)
	assert.Len(t, out, 2)
	assert.Equal(t, 0.07, *out["B.T"])
	_, ok := out["ERR.T"]
	assert.False(t, ok)
}

func TestMerge(t *testing.T) {
	one, two := 1.0, 2.0
	primary := map[string]*float64{"A": &one, "B": nil}
	recovered := map[string]*float64{"B": &two, "C": &two}

	merged := Merge(primary, recovered)
	assert.Len(t, merged, 3)
	assert.Equal(t, 1.0, *merged["A"])
	assert.Equal(t, 2.0, *merged["B"])
	assert.Equal(t, 2.0, *merged["C"])
}

func TestPipeline_RecoversChunkFailures(t *testing.T) {
	syms, series := universe(10)
	src := &collector.MockSource{
		Series: series,
		FailDownload: func(chunk []string) error {
			if chunk[0] == syms[5] {
				return errors.New("timeout")
			}
			return nil
		},
	}
	recovered := ResolverFunc[model.DividendMetric](func(_ context.Context, sym string) (model.DividendMetric, bool, error) {
		return model.DividendMetric{Price: 100, Yield: 0.06, AnnualDividend: 6}, true, nil
	})
	p := &Pipeline[model.DividendMetric]{
		Batch:    newBatch(src, 5, &sleepCounter{}),
		Fallback: &FallbackFetcher[model.DividendMetric]{Resolver: recovered, Sleep: (&sleepCounter{}).Sleep},
	}

	res, err := p.Run(context.Background(), syms)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Failed)
	assert.Equal(t, 5, res.Recovered)
	assert.Len(t, res.Metrics, 10)
	assert.Equal(t, 0.06, res.Metrics[syms[7]].Yield)
}

func TestPipeline_CancelKeepsPartialResult(t *testing.T) {
	syms, series := universe(30)
	ctx, cancel := context.WithCancel(context.Background())
	b := newBatch(&collector.MockSource{Series: series}, 10, &sleepCounter{})
	b.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	p := &Pipeline[model.DividendMetric]{Batch: b}

	res, err := p.Run(ctx, syms)
	require.ErrorIs(t, err, context.Canceled)
	// the first chunk completed before the cancel
	assert.Len(t, res.Metrics, 10)
	assert.Contains(t, res.Metrics, syms[9])
	assert.NotContains(t, res.Metrics, syms[10])
}

func TestPipeline_CancelDuringRecoveryKeepsRecovered(t *testing.T) {
	syms, series := universe(4)
	src := &collector.MockSource{
		Series:       series,
		FailDownload: func([]string) error { return errors.New("timeout") },
	}
	ctx, cancel := context.WithCancel(context.Background())
	resolver := ResolverFunc[model.DividendMetric](func(context.Context, string) (model.DividendMetric, bool, error) {
		return model.DividendMetric{Price: 100, Yield: 0.06}, true, nil
	})
	p := &Pipeline[model.DividendMetric]{
		Batch: newBatch(src, 10, &sleepCounter{}),
		Fallback: &FallbackFetcher[model.DividendMetric]{
			Resolver: resolver,
			Sleep: func(ctx context.Context, _ time.Duration) error {
				cancel()
				return ctx.Err()
			},
		},
	}

	res, err := p.Run(ctx, syms)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, res.Failed)
	assert.Equal(t, 1, res.Recovered)
	require.Contains(t, res.Metrics, syms[0])
	assert.Equal(t, 0.06, res.Metrics[syms[0]].Yield)
}
