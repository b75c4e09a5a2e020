package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"KabuSentinel/internal/calculator"
	"KabuSentinel/internal/model"
)

const lowRule = "+------+------------------+---------+---------+---------+---------+"

// LowSubject is the subject line of a low check; "!!" marks alerts.
func LowSubject(alert bool, now time.Time) string {
	prefix := ""
	if alert {
		prefix = "!!"
	}
	return fmt.Sprintf("[安値チェック]%s (%s)", prefix, day(now))
}

// RenderLows renders the low check table for every row plus the ranked alerts.
// The HTML body is the text table inside <pre>.
func RenderLows(rows, alerts []model.LowEntry, nearLowPct float64, now time.Time) *Message {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("  Low Price Check  %s\n\n", now.In(JST).Format("2006-01-02 15:04")))
	b.WriteString(lowRule + "\n")
	b.WriteString("| code | name             |   price |  13w lo |  26w lo |  52w lo |\n")
	b.WriteString(lowRule + "\n")
	for _, r := range rows {
		cols := make([]string, 0, len(calculator.Periods))
		for _, p := range calculator.Periods {
			cell := "-"
			if l, ok := r.Low(p.Label); ok {
				cell = Number(l.Low, 0)
				if l.PctFromLow < nearLowPct {
					cell = "*" + cell
				}
			}
			cols = append(cols, PadLeft(cell, 7))
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			Fit(r.Code(), 4), Fit(r.Name, 16), PadLeft(Number(r.Price, 0), 7), strings.Join(cols, " | ")))
	}
	b.WriteString(lowRule + "\n")
	b.WriteString(fmt.Sprintf("  * = within %s%% of period low\n\n", Number(nearLowPct, 1)))

	if len(alerts) == 0 {
		b.WriteString("  no alerts\n")
	} else {
		b.WriteString("  --- ALERTS ---\n")
		for _, a := range alerts {
			for _, l := range a.Lows {
				if l.PctFromLow < nearLowPct {
					b.WriteString(fmt.Sprintf("  !! %s %s is within %.1f%% of %s low\n", a.Code(), a.Name, l.PctFromLow, l.Label))
				}
			}
		}
	}

	text := b.String()
	alert := len(alerts) > 0
	return &Message{
		Name:    "lowcheck",
		Subject: LowSubject(alert, now),
		Text:    text,
		HTML:    "<pre>" + html.EscapeString(text) + "</pre>",
		Alert:   alert,
	}
}
