package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KabuSentinel/internal/collector"
	"KabuSentinel/internal/listing"
	"KabuSentinel/internal/model"
	"KabuSentinel/internal/portfolio"
	"KabuSentinel/internal/recorder"
	"KabuSentinel/internal/report"
	"KabuSentinel/internal/screener"
)

var end = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

type captureNotifier struct {
	mu   sync.Mutex
	msgs []*report.Message
	err  error
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Send(_ context.Context, msg *report.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

type fakeRecorder struct {
	recorder.NoopRecorder
	runs       []*recorder.ScanRun
	dividends  []model.DividendEntry
	valuations int
}

func (f *fakeRecorder) RecordDividendScan(run *recorder.ScanRun, entries []model.DividendEntry) error {
	f.runs = append(f.runs, run)
	f.dividends = entries
	return nil
}

func (f *fakeRecorder) RecordLowCheck(run *recorder.ScanRun, _, _ []model.LowEntry) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRecorder) RecordValuation(*model.Valuation) error {
	f.valuations++
	return nil
}

func (f *fakeRecorder) LastRun(kind string) (*recorder.ScanRun, error) {
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].Kind == kind {
			return f.runs[i], nil
		}
	}
	return nil, nil
}

func symbol(ticker, name string) model.Symbol {
	return model.Symbol{Ticker: ticker, Name: name, Sector: "卸売業"}
}

func newTestScheduler(t *testing.T, src *collector.MockSource, universe []model.Symbol) (*Scheduler, *captureNotifier, *fakeRecorder) {
	t.Helper()
	sc := screener.New(src, screener.Config{BatchSize: 10}, nil)
	sc.Sleep = func(context.Context, time.Duration) error { return nil }

	v, err := portfolio.NewValuer(src, []model.Holding{{Code: "2674", Name: "ハードオフ", Shares: 100}}, "", nil)
	require.NoError(t, err)

	n := &captureNotifier{}
	rec := &fakeRecorder{}
	watch := listing.Static{symbol("2674.T", "ハードオフ")}
	s := NewScheduler(context.Background(), listing.Static(universe), watch, sc, v, n, rec, nil)
	return s, n, rec
}

func highYieldSource() *collector.MockSource {
	quarter := end.AddDate(0, -3, 0)
	return &collector.MockSource{
		Series: map[string]collector.SymbolSeries{
			"2674.T": {Close: collector.GenerateSeries(1000, 30, end), Dividends: []model.Point{{Time: quarter, Value: 80}}},
			"8306.T": {Close: collector.GenerateSeries(1000, 30, end), Dividends: []model.Point{{Time: quarter, Value: 10}}},
		},
	}
}

func TestRunDividendScanNow_NotifiesAndRecords(t *testing.T) {
	s, n, rec := newTestScheduler(t, highYieldSource(), []model.Symbol{
		symbol("2674.T", "ハードオフ"), symbol("8306.T", "三菱UFJ"),
	})

	require.NoError(t, s.RunDividendScanNow(context.Background()))

	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0].Subject, "高配当銘柄 1件")
	assert.True(t, n.msgs[0].Alert)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, recorder.KindDividend, rec.runs[0].Kind)
	require.Len(t, rec.dividends, 1)
	assert.Equal(t, "2674.T", rec.dividends[0].Ticker)
}

// slowLister advances the fake clock while listing.
type slowLister struct {
	listing.Static
	advance func()
}

func (l slowLister) List(ctx context.Context) ([]model.Symbol, error) {
	l.advance()
	return l.Static.List(ctx)
}

func TestRunDividendScanNow_DurationIncludesListing(t *testing.T) {
	s, n, rec := newTestScheduler(t, highYieldSource(), nil)
	clock := time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	s.Universe = slowLister{
		Static:  listing.Static{symbol("2674.T", "ハードオフ")},
		advance: func() { clock = clock.Add(3*time.Minute + 7*time.Second) },
	}

	require.NoError(t, s.RunDividendScanNow(context.Background()))
	require.Len(t, rec.runs, 1)
	assert.Equal(t, 3*time.Minute+7*time.Second, rec.runs[0].Summary.Elapsed)
	assert.True(t, rec.runs[0].StartedAt.Equal(time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)))
	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0].HTML, "3分7秒")
}

func TestRunDividendScanNow_EmptySkipsNotification(t *testing.T) {
	s, n, rec := newTestScheduler(t, highYieldSource(), []model.Symbol{symbol("8306.T", "三菱UFJ")})

	require.NoError(t, s.RunDividendScanNow(context.Background()))
	assert.Empty(t, n.msgs)
	// the run is still recorded
	assert.Len(t, rec.runs, 1)
}

func TestRunDividendScanNow_ListingFailureStops(t *testing.T) {
	src := highYieldSource()
	s, n, _ := newTestScheduler(t, src, nil)

	err := s.RunDividendScanNow(context.Background())
	require.Error(t, err)
	assert.Empty(t, n.msgs)
	assert.Empty(t, src.Downloads)
}

func TestRunLowCheckNow_AlwaysNotifies(t *testing.T) {
	s, n, rec := newTestScheduler(t, highYieldSource(), nil)

	require.NoError(t, s.RunLowCheckNow(context.Background()))
	require.Len(t, n.msgs, 1)
	assert.Equal(t, "lowcheck", n.msgs[0].Name)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, recorder.KindLowCheck, rec.runs[0].Kind)
}

func TestRunPortfolioNow(t *testing.T) {
	s, n, rec := newTestScheduler(t, highYieldSource(), nil)

	require.NoError(t, s.RunPortfolioNow(context.Background(), "前場"))
	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0].Subject, "前場")
	assert.Equal(t, 1, rec.valuations)
}

func TestRunPortfolioNow_NoValuer(t *testing.T) {
	s, _, _ := newTestScheduler(t, highYieldSource(), nil)
	s.Valuer = nil
	assert.Error(t, s.RunPortfolioNow(context.Background(), "前場"))
}

func TestNotifyFailureIsReturned(t *testing.T) {
	s, n, _ := newTestScheduler(t, highYieldSource(), nil)
	n.err = errors.New("smtp down")

	err := s.RunLowCheckNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}

func TestExclusive_RejectsConcurrentRun(t *testing.T) {
	s, _, _ := newTestScheduler(t, highYieldSource(), nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.exclusive(recorder.KindDividend, func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := s.exclusive(recorder.KindDividend, func() error { return nil })
	assert.ErrorIs(t, err, ErrBusy)
	// other kinds are independent
	assert.NoError(t, s.exclusive(recorder.KindLowCheck, func() error { return nil }))

	close(release)
	require.NoError(t, <-done)
	assert.NoError(t, s.exclusive(recorder.KindDividend, func() error { return nil }))
}

func TestRegisterAll(t *testing.T) {
	s, _, _ := newTestScheduler(t, highYieldSource(), nil)

	err := s.RegisterAll(Schedule{
		DividendCron: "0 0 18 * * 1-5",
		LowCheckCron: "0 40 15 * * 1-5",
		Portfolio: []Session{
			{Cron: "0 35 11 * * 1-5", Label: "前場"},
			{Cron: "0 35 15 * * 1-5", Label: "大引け"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, s.Cron.Entries(), 4)

	err = s.RegisterAll(Schedule{DividendCron: "not a cron"})
	assert.Error(t, err)
}

func TestHandleCommand(t *testing.T) {
	s, n, _ := newTestScheduler(t, highYieldSource(), nil)
	ctx := context.Background()

	assert.Contains(t, s.HandleCommand(ctx, "/help"), "/dividends")
	assert.Contains(t, s.HandleCommand(ctx, "hello"), "/status")
	assert.Contains(t, s.HandleCommand(ctx, "/status"), "lowcheck: never")

	assert.Equal(t, "", s.HandleCommand(ctx, "/lows"))
	assert.Contains(t, s.HandleCommand(ctx, "/status"), "lowcheck: ")
	assert.NotContains(t, s.HandleCommand(ctx, "/status"), "lowcheck: never")

	assert.Equal(t, "", s.HandleCommand(ctx, "/portfolio 大引け"))
	require.Len(t, n.msgs, 2)
	assert.Contains(t, n.msgs[1].Subject, "大引け")
}
