package report

import (
	"strings"

	"golang.org/x/text/width"
)

// RuneWidth is 2 for wide and fullwidth East Asian runes, 1 otherwise.
func RuneWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

// Width is the display width of s in terminal columns.
func Width(s string) int {
	n := 0
	for _, r := range s {
		n += RuneWidth(r)
	}
	return n
}

// Pad right-pads s with spaces to w columns.
func Pad(s string, w int) string {
	if n := Width(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}

// PadLeft left-pads s with spaces to w columns.
func PadLeft(s string, w int) string {
	if n := Width(s); n < w {
		return strings.Repeat(" ", w-n) + s
	}
	return s
}

// Trunc cuts s to at most w columns without splitting a wide rune.
func Trunc(s string, w int) string {
	cur := 0
	for i, r := range s {
		rw := RuneWidth(r)
		if cur+rw > w {
			return s[:i]
		}
		cur += rw
	}
	return s
}

// Fit truncates and pads s to exactly w columns.
func Fit(s string, w int) string {
	return Pad(Trunc(s, w), w)
}
