package recorder

import "KabuSentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordDividendScan(_ *ScanRun, _ []model.DividendEntry) error { return nil }
func (n *NoopRecorder) RecordLowCheck(_ *ScanRun, _, _ []model.LowEntry) error      { return nil }
func (n *NoopRecorder) RecordValuation(_ *model.Valuation) error                     { return nil }
func (n *NoopRecorder) LastRun(_ string) (*ScanRun, error)                           { return nil, nil }
func (n *NoopRecorder) Close() error                                                 { return nil }
