package collector

import (
	"context"
	"fmt"

	"KabuSentinel/internal/model"
)

// DownloadOptions selects what a bulk download returns.
type DownloadOptions struct {
	Period  string // "5d", "1y", ...
	Actions bool   // include the Dividends column
}

// BulkSource downloads time series for many symbols in one call. A single
// symbol download returns a flat frame, a multi-symbol download a keyed one.
type BulkSource interface {
	Download(ctx context.Context, symbols []string, opts DownloadOptions) (*model.Frame, error)
	Name() string
}

// Info holds the per-symbol fundamentals used by the fallback pass. Absent
// fields are nil. Yields are fractions.
type Info struct {
	TrailingAnnualDividendYield *float64 `json:"trailingAnnualDividendYield"`
	DividendYield               *float64 `json:"dividendYield"`
	TrailingAnnualDividendRate  *float64 `json:"trailingAnnualDividendRate"`
	RegularMarketPrice          *float64 `json:"regularMarketPrice"`
	CurrentPrice                *float64 `json:"currentPrice"`
}

// InfoSource fetches fundamentals for one symbol.
type InfoSource interface {
	Info(ctx context.Context, symbol string) (*Info, error)
}

// Source is a complete market data provider.
type Source interface {
	BulkSource
	InfoSource
}

// APIError is a non-200 response from an upstream API.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream error: status %d, endpoint %s: %s", e.StatusCode, e.Endpoint, e.Message)
}
