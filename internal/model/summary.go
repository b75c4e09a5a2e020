package model

import (
	"fmt"
	"time"
)

// ScanSummary is handed to the report alongside the ranked entries.
type ScanSummary struct {
	TotalScanned int
	Qualified    int
	Failed       int // failed in the primary pass
	Recovered    int // recovered by the fallback pass
	Elapsed      time.Duration
}

// Duration renders the elapsed time as minutes and seconds.
func (s ScanSummary) Duration() string {
	secs := int(s.Elapsed / time.Second)
	return fmt.Sprintf("%d分%d秒", secs/60, secs%60)
}

// Notify reports whether the result is worth a notification.
func (s ScanSummary) Notify() bool {
	return s.Qualified > 0
}
