package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"KabuSentinel/internal/model"
)

type dividendRow struct {
	Code, Name, Sector, Yield, Price, Dividend string
}

type dividendView struct {
	Date      string
	Threshold string
	Count     int
	Rows      []dividendRow
	Scanned   int
	Failed    int
	Recovered int
	Duration  string
}

var dividendTmpl = template.Must(template.New("dividend").Parse(dividendHTML))

// DividendSubject is the subject line of a dividend alert.
func DividendSubject(count int, now time.Time) string {
	return fmt.Sprintf("[配当アラート] 高配当銘柄 %d件 (%s)", count, day(now))
}

// RenderDividends renders the ranked dividend scan.
func RenderDividends(entries []model.DividendEntry, summary model.ScanSummary, threshold float64, now time.Time) (*Message, error) {
	v := dividendView{
		Date:      now.In(JST).Format("2006年01月02日"),
		Threshold: Number(threshold*100, 1),
		Count:     len(entries),
		Scanned:   summary.TotalScanned,
		Failed:    summary.Failed,
		Recovered: summary.Recovered,
		Duration:  summary.Duration(),
	}
	for _, e := range entries {
		v.Rows = append(v.Rows, dividendRow{
			Code:     e.Code(),
			Name:     e.Name,
			Sector:   e.Sector,
			Yield:    Number(e.Yield*100, 2) + "%",
			Price:    Number(e.Price, 0),
			Dividend: Number(e.AnnualDividend, 1),
		})
	}

	var html bytes.Buffer
	if err := dividendTmpl.Execute(&html, v); err != nil {
		return nil, fmt.Errorf("render dividend report: %w", err)
	}
	return &Message{
		Name:    "dividend",
		Subject: DividendSubject(len(entries), now),
		Text:    dividendText(v),
		HTML:    html.String(),
		Alert:   summary.Notify(),
	}, nil
}

func dividendText(v dividendView) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("高配当銘柄アラート - %s\n", v.Date))
	b.WriteString(fmt.Sprintf("配当利回り %s%%以上: %d件\n\n", v.Threshold, v.Count))
	for _, r := range v.Rows {
		b.WriteString(fmt.Sprintf("%s %s %s %s円 (年間配当 %s円)\n",
			Fit(r.Code, 5), Fit(r.Name, 24), PadLeft(r.Yield, 7), PadLeft(r.Price, 8), r.Dividend))
	}
	b.WriteString(fmt.Sprintf("\nスキャン銘柄数: %d\n", v.Scanned))
	b.WriteString(fmt.Sprintf("所要時間: %s\n", v.Duration))
	return b.String()
}
