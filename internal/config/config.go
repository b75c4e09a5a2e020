package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"KabuSentinel/internal/model"
)

// Config holds all application configuration.
type Config struct {
	LogLevel   string `yaml:"log_level"`
	Proxy      string `yaml:"proxy"`
	DataSource struct {
		Provider  string  `yaml:"provider"` // yahoo, frameserver or mock
		BaseURL   string  `yaml:"base_url"`
		APIKey    string  `yaml:"api_key"`
		RateLimit float64 `yaml:"rate_limit"` // requests per second
		Workers   int     `yaml:"workers"`
	} `yaml:"data_source"`
	Listing struct {
		Source  string `yaml:"source"` // jpx or csv
		CSVPath string `yaml:"csv_path"`
	} `yaml:"listing"`
	Scan      ScanConfig      `yaml:"scan"`
	Watchlist []model.Holding `yaml:"watchlist"`
	Holdings  []model.Holding `yaml:"holdings"`
	Schedule  struct {
		DividendCron string        `yaml:"dividend_cron"`
		LowCheckCron string        `yaml:"lowcheck_cron"`
		Portfolio    []SessionCron `yaml:"portfolio"`
	} `yaml:"schedule"`
	Email    EmailConfig `yaml:"email"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Commands bool   `yaml:"commands"`
	} `yaml:"telegram"`
	Output struct {
		Dir       string `yaml:"dir"`
		StateFile string `yaml:"state_file"`
	} `yaml:"output"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// ScanConfig is the static configuration of the scans.
type ScanConfig struct {
	Threshold         float64       `yaml:"threshold"`
	BatchSize         int           `yaml:"batch_size"`
	NearLowPct        float64       `yaml:"near_low_pct"`
	InterBatchDelay   time.Duration `yaml:"inter_batch_delay"`
	InterRequestDelay time.Duration `yaml:"inter_request_delay"`
	MinObservations   int           `yaml:"min_observations"`
	Period            string        `yaml:"period"`
}

// SessionCron schedules one portfolio valuation.
type SessionCron struct {
	Cron    string `yaml:"cron"`
	Session string `yaml:"session"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	SMTPServer   string   `yaml:"smtp_server"`
	SMTPPort     int      `yaml:"smtp_port"`
	SMTPUser     string   `yaml:"smtp_user"`
	SMTPPass     string   `yaml:"smtp_pass"`
	From         string   `yaml:"from"`
	To           []string `yaml:"to"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RefreshToken string   `yaml:"refresh_token"`
	TokenURL     string   `yaml:"token_url"`
}

// Enabled reports whether enough is configured to send mail.
func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != "" && e.From != "" && len(e.To) > 0
}

// Load reads .env files, then config from a YAML file, then applies
// environment variable overrides and defaults.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// loadEnv loads .env files without overriding variables already set.
// Missing files are ignored.
func loadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"LOG_LEVEL":           &c.LogLevel,
		"HTTPS_PROXY":         &c.Proxy,
		"DATA_PROVIDER":       &c.DataSource.Provider,
		"FRAMESERVER_URL":     &c.DataSource.BaseURL,
		"FRAMESERVER_API_KEY": &c.DataSource.APIKey,
		"LISTING_CSV":         &c.Listing.CSVPath,
		"SMTP_SERVER":         &c.Email.SMTPServer,
		"SMTP_USER":           &c.Email.SMTPUser,
		"SMTP_PASSWORD":       &c.Email.SMTPPass,
		"GMAIL_SENDER":        &c.Email.From,
		"GMAIL_CLIENT_ID":     &c.Email.ClientID,
		"GMAIL_CLIENT_SECRET": &c.Email.ClientSecret,
		"GMAIL_REFRESH_TOKEN": &c.Email.RefreshToken,
		"TELEGRAM_BOT_TOKEN":  &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":    &c.Telegram.ChatID,
		"OUTPUT_DIR":          &c.Output.Dir,
		"SQLITE_PATH":         &c.Database.SQLitePath,
		"METRICS_ADDR":        &c.Metrics.Addr,
		"CRON_DIVIDEND":       &c.Schedule.DividendCron,
		"CRON_LOWCHECK":       &c.Schedule.LowCheckCron,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("GMAIL_RECIPIENT"); v != "" {
		c.Email.To = splitList(v)
	}

	var errs []error
	if v := os.Getenv("DIVIDEND_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, envErr("DIVIDEND_THRESHOLD", err))
		c.Scan.Threshold = f
	}
	if v := os.Getenv("NEAR_LOW_PCT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, envErr("NEAR_LOW_PCT", err))
		c.Scan.NearLowPct = f
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("BATCH_SIZE", err))
		c.Scan.BatchSize = n
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("SMTP_PORT", err))
		c.Email.SMTPPort = n
	}
	if v := os.Getenv("INTER_BATCH_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, envErr("INTER_BATCH_DELAY", err))
		c.Scan.InterBatchDelay = d
	}
	if v := os.Getenv("INTER_REQUEST_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, envErr("INTER_REQUEST_DELAY", err))
		c.Scan.InterRequestDelay = d
	}
	return errors.Join(errs...)
}

func envErr(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("env %s: %w", key, err)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
	}
	if c.DataSource.RateLimit == 0 {
		c.DataSource.RateLimit = 8
	}
	if c.DataSource.Workers == 0 {
		c.DataSource.Workers = 8
	}
	if c.Listing.Source == "" {
		c.Listing.Source = "jpx"
	}
	if c.Scan.Threshold == 0 {
		c.Scan.Threshold = 0.05
	}
	if c.Scan.BatchSize == 0 {
		c.Scan.BatchSize = 100
	}
	if c.Scan.NearLowPct == 0 {
		c.Scan.NearLowPct = 1.0
	}
	if c.Scan.InterBatchDelay == 0 {
		c.Scan.InterBatchDelay = 2 * time.Second
	}
	if c.Scan.InterRequestDelay == 0 {
		c.Scan.InterRequestDelay = 500 * time.Millisecond
	}
	if c.Scan.MinObservations == 0 {
		c.Scan.MinObservations = 10
	}
	if c.Scan.Period == "" {
		c.Scan.Period = "1y"
	}
	if c.Schedule.DividendCron == "" {
		c.Schedule.DividendCron = "0 0 18 * * 1-5"
	}
	if c.Schedule.LowCheckCron == "" {
		c.Schedule.LowCheckCron = "0 40 15 * * 1-5"
	}
	if len(c.Schedule.Portfolio) == 0 {
		c.Schedule.Portfolio = []SessionCron{
			{Cron: "0 35 11 * * 1-5", Session: "前場"},
			{Cron: "0 35 15 * * 1-5", Session: "大引け"},
		}
	}
	if c.Email.SMTPServer == "" && c.Email.RefreshToken != "" {
		c.Email.SMTPServer = "smtp.gmail.com"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.SMTPUser == "" {
		c.Email.SMTPUser = c.Email.From
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "out"
	}
	if c.Output.StateFile == "" {
		c.Output.StateFile = "data/portfolio_state.json"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/kabu_sentinel.db"
	}
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	switch c.DataSource.Provider {
	case "yahoo", "mock":
	case "frameserver":
		if c.DataSource.BaseURL == "" {
			return fmt.Errorf("data_source.base_url is required for the frameserver provider")
		}
	default:
		return fmt.Errorf("data_source.provider %q is not supported", c.DataSource.Provider)
	}
	switch c.Listing.Source {
	case "jpx":
	case "csv":
		if c.Listing.CSVPath == "" {
			return fmt.Errorf("listing.csv_path is required for the csv listing")
		}
	default:
		return fmt.Errorf("listing.source %q is not supported", c.Listing.Source)
	}
	if c.Scan.Threshold <= 0 || c.Scan.Threshold >= 1 {
		return fmt.Errorf("scan.threshold must be a fraction between 0 and 1")
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("scan.batch_size must be positive")
	}
	if c.Scan.NearLowPct <= 0 {
		return fmt.Errorf("scan.near_low_pct must be positive")
	}
	if c.Scan.InterBatchDelay < 0 || c.Scan.InterRequestDelay < 0 {
		return fmt.Errorf("scan delays must not be negative")
	}
	for _, h := range c.Holdings {
		if h.Code == "" || h.Shares <= 0 {
			return fmt.Errorf("holding %q needs a code and a positive share count", h.Code)
		}
	}
	for _, w := range c.Watchlist {
		if w.Code == "" {
			return fmt.Errorf("watchlist entries need a code")
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// WatchlistSymbols returns the watchlist as scan symbols.
func (c *Config) WatchlistSymbols() []model.Symbol {
	out := make([]model.Symbol, len(c.Watchlist))
	for i, w := range c.Watchlist {
		out[i] = model.Symbol{Ticker: w.Ticker(), Name: w.Name}
	}
	return out
}
