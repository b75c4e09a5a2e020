// Package listing provides the symbol universes the scans run over.
package listing

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"KabuSentinel/internal/model"
)

// Lister returns an ordered universe. An error is a hard stop for the job.
type Lister interface {
	List(ctx context.Context) ([]model.Symbol, error)
}

// Static is a fixed universe, such as a configured watchlist.
type Static []model.Symbol

func (s Static) List(context.Context) ([]model.Symbol, error) {
	if len(s) == 0 {
		return nil, errors.New("empty symbol list")
	}
	return append([]model.Symbol(nil), s...), nil
}

// CSVLister reads "ticker,name,sector" rows from a file. A header row is
// skipped when its first cell is "ticker"; bare codes get the Tokyo suffix.
type CSVLister struct {
	Path string
}

func (l CSVLister) List(context.Context) ([]model.Symbol, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("open listing: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a listing in CSV form.
func ReadCSV(r io.Reader) ([]model.Symbol, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var out []model.Symbol
	for i, rec := range records {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "ticker") {
			continue
		}
		s := model.Symbol{Ticker: TokyoTicker(rec[0])}
		if len(rec) > 1 {
			s.Name = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 {
			s.Sector = strings.TrimSpace(rec[2])
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("listing has no symbols")
	}
	return out, nil
}

// TokyoTicker qualifies a bare security code with the Tokyo suffix.
func TokyoTicker(code string) string {
	code = strings.TrimSpace(code)
	if strings.Contains(code, ".") {
		return code
	}
	return code + ".T"
}
