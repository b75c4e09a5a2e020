package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"KabuSentinel/internal/model"
)

type positionRow struct {
	Code, Name, Shares, Price, Value string
}

type portfolioView struct {
	Session  string
	Time     string
	Rows     []positionRow
	Total    string
	Change   string
	Previous string
}

var portfolioTmpl = template.Must(template.New("portfolio").Parse(portfolioHTML))

// PortfolioSubject is the subject line of a valuation report.
func PortfolioSubject(session string, now time.Time) string {
	return fmt.Sprintf("[時価レポート] %s (%s)", session, day(now))
}

// RenderPortfolio renders a valuation.
func RenderPortfolio(val *model.Valuation) (*Message, error) {
	v := portfolioView{
		Session: val.Session,
		Time:    val.At.In(JST).Format("2006年01月02日 15:04"),
		Total:   Number(val.Total.InexactFloat64(), 0),
	}
	for _, p := range val.Positions {
		v.Rows = append(v.Rows, positionRow{
			Code:   p.Code,
			Name:   p.Name,
			Shares: Number(float64(p.Shares), 0),
			Price:  Number(p.Price.InexactFloat64(), 0),
			Value:  Number(p.Value.InexactFloat64(), 0),
		})
	}
	if change, ok := val.Change(); ok {
		v.Change = Signed(change.InexactFloat64(), 0)
		v.Previous = fmt.Sprintf("%s %s", val.Previous.Session, val.Previous.At.In(JST).Format("01/02 15:04"))
	}

	var html bytes.Buffer
	if err := portfolioTmpl.Execute(&html, v); err != nil {
		return nil, fmt.Errorf("render portfolio report: %w", err)
	}
	return &Message{
		Name:    "portfolio",
		Subject: PortfolioSubject(val.Session, val.At),
		Text:    portfolioText(v),
		HTML:    html.String(),
		Alert:   true,
	}, nil
}

func portfolioText(v portfolioView) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("保有銘柄レポート - %s\n%s\n\n", v.Session, v.Time))
	for _, r := range v.Rows {
		b.WriteString(fmt.Sprintf("%s %s %s株 %s円 %s円\n",
			Fit(r.Code, 5), Fit(r.Name, 28), PadLeft(r.Shares, 7), PadLeft(r.Price, 7), PadLeft(r.Value, 13)))
	}
	b.WriteString(fmt.Sprintf("\n合計時価: %s円\n", v.Total))
	if v.Change != "" {
		b.WriteString(fmt.Sprintf("前回比: %s円 (%s)\n", v.Change, v.Previous))
	}
	return b.String()
}
