package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/extrame/xls"
	"github.com/rs/zerolog/log"

	"KabuSentinel/internal/model"
)

const (
	jpxPageURL = "https://www.jpx.co.jp/markets/statistics-equities/misc/01.html"
	jpxFileURL = "https://www.jpx.co.jp/markets/statistics-equities/misc/tvdivq0000001vg2-att/data_j.xls"

	colCode   = "コード"
	colName   = "銘柄名"
	colMarket = "市場・商品区分"
	colSector = "33業種区分"
)

// DomesticMarkets are the market segments kept from the JPX listing.
var DomesticMarkets = map[string]bool{
	"プライム（内国株式）":   true,
	"スタンダード（内国株式）": true,
	"グロース（内国株式）":   true,
}

// JPXLister downloads the exchange's list of listed issues.
type JPXLister struct {
	PageURL string // statistics page linking to data_j.xls
	FileURL string // used when the page yields no link
	Client  *http.Client
}

// NewJPXLister creates a lister for the public JPX listing.
func NewJPXLister() *JPXLister {
	return &JPXLister{
		PageURL: jpxPageURL,
		FileURL: jpxFileURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (l *JPXLister) List(ctx context.Context) ([]model.Symbol, error) {
	fileURL := l.FileURL
	if found, err := l.discover(ctx); err != nil {
		log.Warn().Err(err).Str("fallback", fileURL).Msg("jpx link discovery failed")
	} else {
		fileURL = found
	}

	log.Info().Str("url", fileURL).Msg("downloading jpx listing")
	body, err := l.get(ctx, fileURL)
	if err != nil {
		return nil, fmt.Errorf("jpx listing: %w", err)
	}
	rows, err := readXLS(body)
	if err != nil {
		return nil, fmt.Errorf("jpx listing: %w", err)
	}
	symbols, err := ParseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("jpx listing: %w", err)
	}
	log.Info().Int("rows", len(rows)-1).Int("symbols", len(symbols)).Msg("jpx listing loaded")
	return symbols, nil
}

// discover finds the data_j.xls link on the statistics page.
func (l *JPXLister) discover(ctx context.Context) (string, error) {
	if l.PageURL == "" {
		return "", errors.New("no page url")
	}
	body, err := l.get(ctx, l.PageURL)
	if err != nil {
		return "", err
	}
	return findListingLink(body, l.PageURL)
}

func findListingLink(page []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}

	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if !strings.HasSuffix(strings.ToLower(href), "data_j.xls") {
			return true
		}
		if u, err := base.Parse(href); err == nil {
			link = u.String()
			return false
		}
		return true
	})
	if link == "" {
		return "", errors.New("data_j.xls link not found")
	}
	return link, nil
}

func (l *JPXLister) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// readXLS returns the first sheet as rows of cell text.
func readXLS(data []byte) (rows [][]string, err error) {
	// the parser panics on some malformed workbooks
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("read xls: %v", r)
		}
	}()
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("xls has no sheets")
	}
	rows = make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for c := 0; c <= row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// ParseRows turns listing rows into symbols. The first row is the header and
// locates the columns; only domestic stocks on the three main markets are kept.
func ParseRows(rows [][]string) ([]model.Symbol, error) {
	if len(rows) == 0 {
		return nil, errors.New("listing is empty")
	}
	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[strings.TrimSpace(h)] = i
	}
	for _, name := range []string{colCode, colMarket} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("listing header has no %q column", name)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []model.Symbol
	for _, row := range rows[1:] {
		if !DomesticMarkets[cell(row, colMarket)] {
			continue
		}
		code := strings.TrimSuffix(cell(row, colCode), ".0")
		if code == "" {
			continue
		}
		out = append(out, model.Symbol{
			Ticker: TokyoTicker(code),
			Name:   cell(row, colName),
			Sector: cell(row, colSector),
		})
	}
	if len(out) == 0 {
		return nil, errors.New("listing has no domestic stocks")
	}
	return out, nil
}
