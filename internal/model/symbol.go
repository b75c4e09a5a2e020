package model

import "strings"

// Symbol is one exchange-listed equity.
type Symbol struct {
	Ticker string // exchange-qualified, e.g. "7203.T"
	Name   string
	Sector string
}

// Code returns the ticker without its market suffix.
func (s Symbol) Code() string {
	if i := strings.LastIndexByte(s.Ticker, '.'); i > 0 {
		return s.Ticker[:i]
	}
	return s.Ticker
}

// Tickers returns the tickers of symbols in order.
func Tickers(symbols []Symbol) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = s.Ticker
	}
	return out
}
