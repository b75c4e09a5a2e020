package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"KabuSentinel/internal/listing"
	"KabuSentinel/internal/metrics"
	"KabuSentinel/internal/notifier"
	"KabuSentinel/internal/portfolio"
	"KabuSentinel/internal/recorder"
	"KabuSentinel/internal/report"
	"KabuSentinel/internal/screener"
)

// ErrBusy is returned when a job of the same kind is still running.
var ErrBusy = errors.New("job already running")

// Session is one scheduled portfolio valuation.
type Session struct {
	Cron  string
	Label string
}

// Schedule holds the cron specs, seconds first.
type Schedule struct {
	DividendCron string
	LowCheckCron string
	Portfolio    []Session
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Universe  listing.Lister // dividend scan universe
	Watchlist listing.Lister // low check universe
	Screener  *screener.Screener
	Valuer    *portfolio.Valuer // nil disables portfolio jobs
	Notifier  notifier.Notifier
	Recorder  recorder.Recorder
	Metrics   *metrics.Registry
	Ctx       context.Context

	now     func() time.Time
	running sync.Map // kind -> *sync.Mutex
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, universe, watchlist listing.Lister, sc *screener.Screener,
	v *portfolio.Valuer, n notifier.Notifier, rec recorder.Recorder, m *metrics.Registry) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron: cron.New(cron.WithSeconds(), cron.WithLocation(report.JST),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{}))),
		Universe:  universe,
		Watchlist: watchlist,
		Screener:  sc,
		Valuer:    v,
		Notifier:  n,
		Recorder:  rec,
		Metrics:   m,
		Ctx:       ctx,
		now:       time.Now,
	}
}

// RegisterAll registers the dividend, low check and portfolio tasks.
func (s *Scheduler) RegisterAll(sch Schedule) error {
	if _, err := s.Cron.AddFunc(sch.DividendCron, s.job(recorder.KindDividend, s.RunDividendScanNow)); err != nil {
		return fmt.Errorf("register dividend task: %w", err)
	}
	if _, err := s.Cron.AddFunc(sch.LowCheckCron, s.job(recorder.KindLowCheck, s.RunLowCheckNow)); err != nil {
		return fmt.Errorf("register low check task: %w", err)
	}
	if s.Valuer == nil {
		return nil
	}
	for _, sess := range sch.Portfolio {
		label := sess.Label
		run := func(ctx context.Context) error { return s.RunPortfolioNow(ctx, label) }
		if _, err := s.Cron.AddFunc(sess.Cron, s.job(recorder.KindPortfolio, run)); err != nil {
			return fmt.Errorf("register portfolio task %s: %w", label, err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) job(kind string, run func(context.Context) error) func() {
	return func() {
		if err := run(s.Ctx); err != nil {
			log.Error().Str("job", kind).Err(err).Msg("scheduled task failed")
		}
	}
}

// exclusive runs fn unless a job of the same kind is in flight.
func (s *Scheduler) exclusive(kind string, fn func() error) error {
	mu, _ := s.running.LoadOrStore(kind, &sync.Mutex{})
	if !mu.(*sync.Mutex).TryLock() {
		return fmt.Errorf("%s: %w", kind, ErrBusy)
	}
	defer mu.(*sync.Mutex).Unlock()
	return fn()
}

// RunDividendScanNow lists the universe, scans it and notifies when anything qualifies.
func (s *Scheduler) RunDividendScanNow(ctx context.Context) error {
	return s.exclusive(recorder.KindDividend, func() error {
		started := s.now()
		log.Info().Msg("running dividend scan task")

		universe, err := s.Universe.List(ctx)
		if err != nil {
			return fmt.Errorf("list universe: %w", err)
		}
		res, err := s.Screener.ScanDividends(ctx, universe)
		if err != nil {
			return err
		}
		// The report times the whole job, listing included.
		res.Summary.Elapsed = s.now().Sub(started)

		s.record(func() error {
			return s.Recorder.RecordDividendScan(recorder.NewRun(recorder.KindDividend, started, res.Summary), res.Entries)
		})

		if !res.Summary.Notify() {
			log.Info().Msg("no qualifying symbols, notification skipped")
			return nil
		}
		msg, err := report.RenderDividends(res.Entries, res.Summary, s.Screener.Config.Threshold, s.now())
		if err != nil {
			return fmt.Errorf("render dividend report: %w", err)
		}
		return s.send(ctx, recorder.KindDividend, msg)
	})
}

// RunLowCheckNow checks the watchlist against its period lows.
func (s *Scheduler) RunLowCheckNow(ctx context.Context) error {
	return s.exclusive(recorder.KindLowCheck, func() error {
		started := s.now()
		log.Info().Msg("running low check task")

		watchlist, err := s.Watchlist.List(ctx)
		if err != nil {
			return fmt.Errorf("list watchlist: %w", err)
		}
		res, err := s.Screener.CheckLows(ctx, watchlist)
		if err != nil {
			return err
		}
		res.Summary.Elapsed = s.now().Sub(started)

		s.record(func() error {
			return s.Recorder.RecordLowCheck(recorder.NewRun(recorder.KindLowCheck, started, res.Summary), res.Rows, res.Alerts)
		})

		msg := report.RenderLows(res.Rows, res.Alerts, s.Screener.Config.NearLowPct, s.now())
		return s.send(ctx, recorder.KindLowCheck, msg)
	})
}

// RunPortfolioNow values the holdings for the given session label.
func (s *Scheduler) RunPortfolioNow(ctx context.Context, session string) error {
	if s.Valuer == nil {
		return errors.New("portfolio has no holdings")
	}
	return s.exclusive(recorder.KindPortfolio, func() error {
		log.Info().Str("session", session).Msg("running portfolio task")

		val, err := s.Valuer.Value(ctx, session)
		if err != nil {
			return err
		}
		s.record(func() error { return s.Recorder.RecordValuation(val) })

		msg, err := report.RenderPortfolio(val)
		if err != nil {
			return fmt.Errorf("render portfolio report: %w", err)
		}
		return s.send(ctx, recorder.KindPortfolio, msg)
	})
}

func (s *Scheduler) send(ctx context.Context, kind string, msg *report.Message) error {
	if s.Notifier == nil {
		return nil
	}
	if err := s.Notifier.Send(ctx, msg); err != nil {
		s.Metrics.NotifyFailed(kind)
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (s *Scheduler) record(fn func() error) {
	if err := fn(); err != nil {
		log.Error().Err(err).Msg("record run failed")
	}
}

const helpText = `commands:
/dividends - run the dividend scan
/lows - run the low check
/portfolio [session] - value the holdings
/status - last run of each job`

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch fields[0] {
	case "/dividends":
		// A full scan takes minutes; the report arrives on its own.
		go func() {
			if err := s.RunDividendScanNow(s.Ctx); err != nil {
				log.Error().Err(err).Msg("dividend scan from command failed")
			}
		}()
		return "dividend scan started"
	case "/lows":
		if err := s.RunLowCheckNow(ctx); err != nil {
			return "low check failed: " + err.Error()
		}
		return ""
	case "/portfolio":
		session := "手動"
		if len(fields) > 1 {
			session = fields[1]
		}
		if err := s.RunPortfolioNow(ctx, session); err != nil {
			return "portfolio failed: " + err.Error()
		}
		return ""
	case "/status":
		return s.status()
	default:
		return helpText
	}
}

func (s *Scheduler) status() string {
	var b strings.Builder
	for _, kind := range []string{recorder.KindDividend, recorder.KindLowCheck} {
		run, err := s.Recorder.LastRun(kind)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "%s: %v\n", kind, err)
		case run == nil:
			fmt.Fprintf(&b, "%s: never\n", kind)
		default:
			sum := run.Summary
			fmt.Fprintf(&b, "%s: %s scanned=%d qualified=%d failed=%d recovered=%d (%s)\n",
				kind, run.StartedAt.In(report.JST).Format("2006-01-02 15:04"),
				sum.TotalScanned, sum.Qualified, sum.Failed, sum.Recovered, sum.Duration())
		}
	}
	for _, e := range s.Cron.Entries() {
		if !e.Next.IsZero() {
			fmt.Fprintf(&b, "next: %s\n", e.Next.In(report.JST).Format("2006-01-02 15:04"))
			break
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron " + msg)
}
