// Package report renders scan results into notification messages.
package report

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// JST is the exchange's time zone. Every report date is in JST.
var JST = time.FixedZone("JST", 9*60*60)

// Message is a rendered notification.
type Message struct {
	Name    string // short job name, used for file hand-off
	Subject string
	Text    string
	HTML    string
	Alert   bool // the result is worth interrupting someone for
}

var numbers = message.NewPrinter(language.Japanese)

// Number formats v with digit grouping and prec decimals.
func Number(v float64, prec int) string {
	return numbers.Sprintf(fmt.Sprintf("%%.%df", prec), v)
}

// Signed formats v like Number with an explicit sign.
func Signed(v float64, prec int) string {
	if v < 0 {
		return "-" + Number(-v, prec)
	}
	return "+" + Number(v, prec)
}

func day(t time.Time) string {
	return t.In(JST).Format("2006-01-02")
}
