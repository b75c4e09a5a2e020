package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"KabuSentinel/internal/collector"
	"KabuSentinel/internal/config"
	"KabuSentinel/internal/listing"
	"KabuSentinel/internal/metrics"
	"KabuSentinel/internal/model"
	"KabuSentinel/internal/notifier"
	"KabuSentinel/internal/portfolio"
	"KabuSentinel/internal/recorder"
	"KabuSentinel/internal/scheduler"
	"KabuSentinel/internal/screener"
)

// app is everything a command needs, built once from the config.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Registry
	source   collector.Source
	telegram *notifier.TelegramNotifier
	recorder recorder.Recorder
	sched    *scheduler.Scheduler
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flags.config, flags.envFiles...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.dryRun {
		cfg.DataSource.Provider = "mock"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	setupLogging(level)

	a := &app{cfg: cfg, metrics: metrics.NewRegistry()}
	a.source = newSource(cfg)
	log.Info().Str("source", a.source.Name()).Msg("data source ready")

	sc := screener.New(a.source, screener.Config{
		Threshold:       cfg.Scan.Threshold,
		NearLowPct:      cfg.Scan.NearLowPct,
		BatchSize:       cfg.Scan.BatchSize,
		BatchDelay:      cfg.Scan.InterBatchDelay,
		RequestDelay:    cfg.Scan.InterRequestDelay,
		MinObservations: cfg.Scan.MinObservations,
		Period:          cfg.Scan.Period,
	}, a.metrics)

	var valuer *portfolio.Valuer
	if len(cfg.Holdings) > 0 {
		valuer, err = portfolio.NewValuer(a.source, cfg.Holdings, cfg.Output.StateFile, a.metrics)
		if err != nil {
			return nil, err
		}
	}

	n, err := a.notifiers()
	if err != nil {
		return nil, err
	}
	a.recorder = newRecorder(cfg)

	watch := listing.Static(cfg.WatchlistSymbols())
	a.sched = scheduler.NewScheduler(ctx, newLister(cfg, watch), watch, sc, valuer, n, a.recorder, a.metrics)
	return a, nil
}

func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		log.Error().Err(err).Msg("close recorder")
	}
}

func newSource(cfg *config.Config) collector.Source {
	switch cfg.DataSource.Provider {
	case "frameserver":
		return collector.NewFrameServerFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	case "mock":
		return mockSource(cfg)
	default:
		return collector.NewYahooFetcher(cfg.Proxy,
			collector.WithYahooRateLimit(cfg.DataSource.RateLimit, cfg.DataSource.Workers),
			collector.WithYahooWorkers(cfg.DataSource.Workers))
	}
}

// mockSource fabricates a year of history for every configured code.
func mockSource(cfg *config.Config) *collector.MockSource {
	now := time.Now().Truncate(24 * time.Hour)
	src := &collector.MockSource{Series: map[string]collector.SymbolSeries{}}
	codes := append(append([]model.Holding(nil), cfg.Watchlist...), cfg.Holdings...)
	for i, h := range codes {
		base := 500 + 250*float64(i)
		src.Series[h.Ticker()] = collector.SymbolSeries{
			Close:     collector.GenerateSeries(base, 250, now),
			Dividends: []model.Point{{Time: now.AddDate(0, -3, 0), Value: base * 0.02 * float64(i%4+1)}},
		}
	}
	return src
}

func newLister(cfg *config.Config, watch listing.Static) listing.Lister {
	switch {
	case cfg.Listing.Source == "csv":
		return listing.CSVLister{Path: cfg.Listing.CSVPath}
	case flags.dryRun:
		return watch
	default:
		return listing.NewJPXLister()
	}
}

func newRecorder(cfg *config.Config) recorder.Recorder {
	if cfg.Database.SQLitePath == "" || flags.dryRun {
		return recorder.NewNoopRecorder()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
		log.Warn().Err(err).Msg("create database dir failed, using noop recorder")
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}

// notifiers builds the delivery chain. Files are always written; email and
// Telegram only hear about alerts.
func (a *app) notifiers() (notifier.Notifier, error) {
	cfg := a.cfg
	multi := notifier.Multi{&notifier.FileNotifier{Dir: cfg.Output.Dir}}
	if flags.dryRun {
		return multi, nil
	}

	if cfg.Email.Enabled() {
		en, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			SMTPServer: cfg.Email.SMTPServer,
			SMTPPort:   cfg.Email.SMTPPort,
			SMTPUser:   cfg.Email.SMTPUser,
			SMTPPass:   cfg.Email.SMTPPass,
			FromEmail:  cfg.Email.From,
			ToEmail:    cfg.Email.To,
			OAuth: notifier.OAuthConfig{
				ClientID:     cfg.Email.ClientID,
				ClientSecret: cfg.Email.ClientSecret,
				RefreshToken: cfg.Email.RefreshToken,
				TokenURL:     cfg.Email.TokenURL,
			},
		})
		if err != nil {
			return nil, err
		}
		multi = append(multi, notifier.AlertsOnly(en))
	}

	if cfg.Telegram.BotToken != "" {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		multi = append(multi, notifier.AlertsOnly(a.telegram))
	}
	return multi, nil
}
