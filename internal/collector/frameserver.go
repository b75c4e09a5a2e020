package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"KabuSentinel/internal/model"
)

// FrameServerFetcher implements Source against a yfinance sidecar that serves
// downloads as pandas "split" JSON. Its column labels follow pandas: a plain
// string for single-symbol downloads, a two element array otherwise, in
// (ticker, field) or (field, ticker) order depending on how it was grouped.
type FrameServerFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewFrameServerFetcher creates a new fetcher with optional proxy support.
func NewFrameServerFetcher(baseURL, apiKey, proxyURL string) *FrameServerFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &FrameServerFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
	}
}

func (f *FrameServerFetcher) Name() string { return "frameserver" }

// splitFrame is the pandas DataFrame.to_json(orient="split") shape.
type splitFrame struct {
	Columns []json.RawMessage `json:"columns"`
	Index   []int64           `json:"index"` // epoch milliseconds
	Data    [][]*float64      `json:"data"`
}

var knownFields = map[string]bool{
	model.FieldOpen: true, model.FieldHigh: true, model.FieldLow: true, model.FieldClose: true,
	model.FieldAdjClose: true, model.FieldVolume: true, model.FieldDividends: true, model.FieldSplits: true,
}

// parseColumn turns a pandas column label into a ColumnKey.
func parseColumn(raw json.RawMessage) (model.ColumnKey, error) {
	var field string
	if err := json.Unmarshal(raw, &field); err == nil {
		return model.ColumnKey{Field: field}, nil
	}
	var pair []string
	if err := json.Unmarshal(raw, &pair); err != nil {
		return model.ColumnKey{}, fmt.Errorf("column label %s: %w", string(raw), err)
	}
	if len(pair) != 2 {
		return model.ColumnKey{}, fmt.Errorf("column label %s: expected 2 levels, got %d", string(raw), len(pair))
	}
	if knownFields[pair[0]] && !knownFields[pair[1]] {
		return model.ColumnKey{Symbol: pair[1], Field: pair[0]}, nil
	}
	return model.ColumnKey{Symbol: pair[0], Field: pair[1]}, nil
}

// decodeSplitFrame converts a split-orient payload into a Frame.
func decodeSplitFrame(r io.Reader) (*model.Frame, error) {
	var sf splitFrame
	if err := json.NewDecoder(r).Decode(&sf); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if len(sf.Data) != len(sf.Index) {
		return nil, fmt.Errorf("decode frame: %d rows for %d index entries", len(sf.Data), len(sf.Index))
	}

	index := make([]time.Time, len(sf.Index))
	for i, ms := range sf.Index {
		index[i] = time.UnixMilli(ms).In(jst)
	}
	frame := model.NewFrame(index)
	for c, raw := range sf.Columns {
		key, err := parseColumn(raw)
		if err != nil {
			return nil, err
		}
		col := make([]*float64, len(index))
		for r, row := range sf.Data {
			if c < len(row) {
				col[r] = row[c]
			}
		}
		frame.Set(key, col)
	}
	return frame, nil
}

// Download requests one frame covering all symbols.
func (f *FrameServerFetcher) Download(ctx context.Context, symbols []string, opts DownloadOptions) (*model.Frame, error) {
	if len(symbols) == 0 {
		return nil, errors.New("frameserver: no symbols requested")
	}
	period := opts.Period
	if period == "" {
		period = "1y"
	}
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("period", period)
	q.Set("actions", fmt.Sprintf("%t", opts.Actions))
	q.Set("group_by", "ticker")

	resp, err := f.do(ctx, "/api/v1/download?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeSplitFrame(resp.Body)
}

// Info requests the ticker info dictionary for one symbol.
func (f *FrameServerFetcher) Info(ctx context.Context, symbol string) (*Info, error) {
	resp, err := f.do(ctx, "/api/v1/info?symbol="+url.QueryEscape(symbol))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode info: %w", err)
	}
	if info.DividendYield != nil {
		// yfinance passes dividendYield through in percent.
		info.DividendYield = model.Float(*info.DividendYield / 100)
	}
	return &info, nil
}

func (f *FrameServerFetcher) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("frameserver request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: req.URL.Path, Message: truncate(string(body), 200)}
	}
	return resp, nil
}
