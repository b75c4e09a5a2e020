package model

import "time"

// Field names used in a Frame.
const (
	FieldOpen      = "Open"
	FieldHigh      = "High"
	FieldLow       = "Low"
	FieldClose     = "Close"
	FieldAdjClose  = "Adj Close"
	FieldVolume    = "Volume"
	FieldDividends = "Dividends"
	FieldSplits    = "Stock Splits"
)

// ColumnKey addresses one column of a Frame. Symbol is empty in the flat
// layout returned for single-symbol downloads.
type ColumnKey struct {
	Symbol string
	Field  string
}

// Frame is a bulk download result: a shared time index and nullable columns.
// Multi-symbol downloads are keyed by (symbol, field); a download of exactly
// one symbol comes back flat, keyed by field only.
type Frame struct {
	Index   []time.Time
	Columns map[ColumnKey][]*float64
}

// NewFrame creates an empty frame over the given index.
func NewFrame(index []time.Time) *Frame {
	return &Frame{Index: index, Columns: make(map[ColumnKey][]*float64)}
}

// Set stores a column. The slice must be aligned with the index.
func (f *Frame) Set(key ColumnKey, values []*float64) {
	f.Columns[key] = values
}

// Column returns the column for key and whether it exists.
func (f *Frame) Column(key ColumnKey) ([]*float64, bool) {
	c, ok := f.Columns[key]
	return c, ok
}

// Point is one non-null observation.
type Point struct {
	Time  time.Time
	Value float64
}

// Float returns a pointer to v, for building frame columns.
func Float(v float64) *float64 { return &v }
