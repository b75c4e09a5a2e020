package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"KabuSentinel/internal/model"
	"KabuSentinel/internal/scheduler"
)

var flags struct {
	config     string
	envFiles   []string
	logLevel   string
	dryRun     bool
	runOnStart bool
}

func main() {
	setupLogging("info")

	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Japan equity dividend and low-price scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultConfig := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	root.PersistentFlags().StringVar(&flags.config, "config", defaultConfig, "path to the YAML config")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env", nil, ".env files to load (default .env)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level, overrides the config")
	root.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "use generated data and write files only")

	root.AddCommand(
		&cobra.Command{
			Use:   "dividends",
			Short: "Scan the listed universe for high dividend yields",
			Args:  cobra.NoArgs,
			RunE: oneShot(func(ctx context.Context, s *scheduler.Scheduler, _ []string) error {
				return s.RunDividendScanNow(ctx)
			}),
		},
		&cobra.Command{
			Use:   "lows",
			Short: "Check the watchlist against its 13/26/52 week lows",
			Args:  cobra.NoArgs,
			RunE: oneShot(func(ctx context.Context, s *scheduler.Scheduler, _ []string) error {
				return s.RunLowCheckNow(ctx)
			}),
		},
		&cobra.Command{
			Use:   "portfolio [session]",
			Short: "Value the configured holdings",
			Args:  cobra.MaximumNArgs(1),
			RunE: oneShot(func(ctx context.Context, s *scheduler.Scheduler, args []string) error {
				session := "手動"
				if len(args) == 1 {
					session = args[0]
				}
				return s.RunPortfolioNow(ctx, session)
			}),
		},
		&cobra.Command{
			Use:   "tickers",
			Short: "Print the scan universe",
			Args:  cobra.NoArgs,
			RunE:  runTickers,
		},
		serveCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func oneShot(run func(ctx context.Context, s *scheduler.Scheduler, args []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(ctx, a.sched, args)
	}
}

func runTickers(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	symbols, err := a.sched.Universe.List(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range symbols {
		fmt.Fprintf(out, "%s\t%s\t%s\n", s.Ticker, s.Name, s.Sector)
	}
	log.Info().Int("symbols", len(symbols)).Msg("universe listed")
	return nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled jobs until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().BoolVar(&flags.runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "run the low check once at startup")
	return cmd
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log.Info().Msg("KabuSentinel starting")

	sessions := make([]scheduler.Session, len(a.cfg.Schedule.Portfolio))
	for i, p := range a.cfg.Schedule.Portfolio {
		sessions[i] = scheduler.Session{Cron: p.Cron, Label: p.Session}
	}
	if err := a.sched.RegisterAll(scheduler.Schedule{
		DividendCron: a.cfg.Schedule.DividendCron,
		LowCheckCron: a.cfg.Schedule.LowCheckCron,
		Portfolio:    sessions,
	}); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	a.sched.Start()
	defer a.sched.Stop()

	var srv *http.Server
	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		log.Info().Str("addr", addr).Msg("metrics server started")
	}

	if a.telegram != nil && a.cfg.Telegram.Commands {
		go a.telegram.StartPolling(ctx, a.sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if flags.runOnStart {
		log.Info().Msg("run on start enabled, executing low check now")
		go func() {
			if err := a.sched.RunLowCheckNow(ctx); err != nil {
				log.Error().Err(err).Msg("startup low check failed")
			}
		}()
	}

	log.Info().Strs("watchlist", model.Tickers(a.cfg.WatchlistSymbols())).Msg("KabuSentinel is running, press Ctrl+C to stop")
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, stopping")
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	return nil
}
