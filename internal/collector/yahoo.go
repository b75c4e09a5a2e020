package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"KabuSentinel/internal/model"
)

const (
	yahooBaseURL   = "https://query1.finance.yahoo.com"
	yahooCookieURL = "https://fc.yahoo.com"
	yahooUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ErrNoInfo is returned when the upstream has no quote for a symbol.
var ErrNoInfo = errors.New("no quote data")

var jst = time.FixedZone("JST", 9*60*60)

// YahooFetcher implements Source using the Yahoo Finance public API. A bulk
// download issues one chart request per symbol, fanned out over a bounded
// worker pool and paced by a shared rate limiter.
type YahooFetcher struct {
	BaseURL   string
	CookieURL string
	Client    *http.Client

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	workers int

	mu    sync.Mutex
	crumb string
}

// YahooOption configures a YahooFetcher.
type YahooOption func(*YahooFetcher)

// WithYahooBaseURL points the fetcher at another host, mainly for tests.
func WithYahooBaseURL(baseURL, cookieURL string) YahooOption {
	return func(f *YahooFetcher) {
		f.BaseURL = baseURL
		f.CookieURL = cookieURL
	}
}

// WithYahooRateLimit sets the request rate shared by all workers.
func WithYahooRateLimit(rps float64, burst int) YahooOption {
	return func(f *YahooFetcher) {
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithYahooWorkers sets how many chart requests of one download run at once.
func WithYahooWorkers(n int) YahooOption {
	return func(f *YahooFetcher) {
		if n > 0 {
			f.workers = n
		}
	}
}

// NewYahooFetcher creates a new Yahoo Finance fetcher with optional proxy support.
func NewYahooFetcher(proxyURL string, opts ...YahooOption) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	jar, _ := cookiejar.New(nil)
	f := &YahooFetcher{
		BaseURL:   yahooBaseURL,
		CookieURL: yahooCookieURL,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
			Jar:       jar,
		},
		limiter: rate.NewLimiter(rate.Limit(8), 8),
		workers: 8,
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yahoo",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 20
		},
		IsSuccessful: func(err error) bool {
			// Unknown or delisted tickers are the symbol's problem, not the upstream's.
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

// yahooQuote is the response structure from the v7 quote API.
type yahooQuote struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                      string   `json:"symbol"`
			TrailingAnnualDividendYield *float64 `json:"trailingAnnualDividendYield"`
			TrailingAnnualDividendRate  *float64 `json:"trailingAnnualDividendRate"`
			DividendYield               *float64 `json:"dividendYield"`
			RegularMarketPrice          *float64 `json:"regularMarketPrice"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"quoteResponse"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// tradingDay maps a Yahoo timestamp to the Tokyo calendar day it belongs to.
func tradingDay(ts int64) time.Time {
	t := time.Unix(ts, 0).In(jst)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, jst)
}

// get performs a paced GET through the circuit breaker.
func (f *YahooFetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("yahoo rate limiter: %w", err)
	}
	body, err := f.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", yahooUserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := f.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("yahoo fetch: %w", err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("yahoo read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: req.URL.Path, Message: truncate(string(b), 200)}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

func (f *YahooFetcher) fetchSeries(ctx context.Context, symbol, rng string, actions bool) (SymbolSeries, error) {
	if rng == "" {
		rng = "1y"
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s", f.BaseURL, url.PathEscape(symbol), rng)
	if actions {
		u += "&events=div"
	}
	body, err := f.get(ctx, u)
	if err != nil {
		return SymbolSeries{}, err
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return SymbolSeries{}, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return SymbolSeries{}, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return SymbolSeries{}, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}

	result := chart.Chart.Result[0]
	var s SymbolSeries
	if len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		for i, ts := range result.Timestamp {
			if i >= len(closes) || closes[i] == nil {
				continue // null bars (holidays, halts)
			}
			s.Close = append(s.Close, model.Point{Time: tradingDay(ts), Value: *closes[i]})
		}
	}
	for _, d := range result.Events.Dividends {
		s.Dividends = append(s.Dividends, model.Point{Time: tradingDay(d.Date), Value: d.Amount})
	}
	sort.Slice(s.Dividends, func(i, j int) bool { return s.Dividends[i].Time.Before(s.Dividends[j].Time) })
	return s, nil
}

// Download fetches the chart of every symbol and lays them out in one frame.
// It fails as a whole when the circuit is open, the context ends, or no
// symbol could be fetched; otherwise failed symbols just have no columns.
func (f *YahooFetcher) Download(ctx context.Context, symbols []string, opts DownloadOptions) (*model.Frame, error) {
	if len(symbols) == 0 {
		return nil, errors.New("yahoo: no symbols requested")
	}
	if f.breaker.State() == gobreaker.StateOpen {
		return nil, fmt.Errorf("yahoo: %w", gobreaker.ErrOpenState)
	}

	type result struct {
		series SymbolSeries
		err    error
	}
	results := make([]result, len(symbols))
	var wg sync.WaitGroup
	sem := make(chan struct{}, f.workers)
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			s, err := f.fetchSeries(ctx, sym, opts.Period, opts.Actions)
			results[i] = result{series: s, err: err}
		}(i, sym)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	series := make(map[string]SymbolSeries, len(symbols))
	var lastErr error
	for i, r := range results {
		if r.err != nil {
			lastErr = r.err
			log.Debug().Str("symbol", symbols[i]).Err(r.err).Msg("yahoo chart failed")
			continue
		}
		series[symbols[i]] = r.series
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("yahoo: all %d symbols failed: %w", len(symbols), lastErr)
	}
	return BuildFrame(symbols, series, opts.Actions), nil
}

// Info fetches quote fundamentals for one symbol.
func (f *YahooFetcher) Info(ctx context.Context, symbol string) (*Info, error) {
	crumb, err := f.ensureCrumb(ctx)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/v7/finance/quote?symbols=%s&crumb=%s", f.BaseURL, url.QueryEscape(symbol), url.QueryEscape(crumb))
	body, err := f.get(ctx, u)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			f.resetCrumb()
		}
		return nil, err
	}

	var q yahooQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("yahoo decode quote: %w", err)
	}
	if q.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", q.QuoteResponse.Error.Description)
	}
	if len(q.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, ErrNoInfo)
	}
	r := q.QuoteResponse.Result[0]
	info := &Info{
		TrailingAnnualDividendYield: r.TrailingAnnualDividendYield,
		TrailingAnnualDividendRate:  r.TrailingAnnualDividendRate,
		RegularMarketPrice:          r.RegularMarketPrice,
	}
	if r.DividendYield != nil {
		// The quote API reports this one in percent.
		info.DividendYield = model.Float(*r.DividendYield / 100)
	}
	return info, nil
}

// ensureCrumb obtains the session cookie and crumb the quote API requires.
func (f *YahooFetcher) ensureCrumb(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crumb != "" {
		return f.crumb, nil
	}

	// The cookie endpoint answers 404 but still sets the session cookie.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.CookieURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	if resp, err := f.Client.Do(req); err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	} else {
		log.Warn().Err(err).Msg("yahoo cookie request failed")
	}

	body, err := f.get(ctx, f.BaseURL+"/v1/test/getcrumb")
	if err != nil {
		return "", fmt.Errorf("yahoo crumb: %w", err)
	}
	crumb := strings.TrimSpace(string(body))
	if crumb == "" {
		return "", errors.New("yahoo crumb: empty response")
	}
	f.crumb = crumb
	return crumb, nil
}

func (f *YahooFetcher) resetCrumb() {
	f.mu.Lock()
	f.crumb = ""
	f.mu.Unlock()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
