package recorder

import (
	"time"

	"github.com/google/uuid"

	"KabuSentinel/internal/model"
)

// Run kinds.
const (
	KindDividend  = "dividend"
	KindLowCheck  = "lowcheck"
	KindPortfolio = "portfolio"
)

// ScanRun identifies one job execution and carries its summary.
type ScanRun struct {
	ID        string
	Kind      string
	StartedAt time.Time
	Summary   model.ScanSummary
}

// NewRun creates a run record with a fresh ID.
func NewRun(kind string, startedAt time.Time, summary model.ScanSummary) *ScanRun {
	return &ScanRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: startedAt,
		Summary:   summary,
	}
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordDividendScan(run *ScanRun, entries []model.DividendEntry) error
	RecordLowCheck(run *ScanRun, rows []model.LowEntry, alerts []model.LowEntry) error
	RecordValuation(val *model.Valuation) error
	// LastRun returns the most recent run of kind, or nil if there is none.
	LastRun(kind string) (*ScanRun, error)
	Close() error
}
