package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is one configured portfolio position.
type Holding struct {
	Code   string `yaml:"code" json:"code"`
	Name   string `yaml:"name" json:"name"`
	Shares int64  `yaml:"shares" json:"shares"`
}

// Ticker returns the Tokyo-qualified ticker for the holding.
func (h Holding) Ticker() string { return h.Code + ".T" }

// Position is a holding marked to market. Price is zero when no quote was available.
type Position struct {
	Holding
	Price decimal.Decimal `json:"price"`
	Value decimal.Decimal `json:"value"`
}

// Valuation is one portfolio report.
type Valuation struct {
	Session   string          `json:"session"`
	Positions []Position      `json:"positions"`
	Total     decimal.Decimal `json:"total"`
	Previous  *Snapshot       `json:"-"`
	At        time.Time       `json:"at"`
}

// Change returns the total's change versus the previous snapshot.
func (v *Valuation) Change() (decimal.Decimal, bool) {
	if v.Previous == nil {
		return decimal.Zero, false
	}
	return v.Total.Sub(v.Previous.Total), true
}

// Snapshot is the persisted summary of the last valuation.
type Snapshot struct {
	Session string          `json:"session"`
	Total   decimal.Decimal `json:"total"`
	At      time.Time       `json:"at"`
}
