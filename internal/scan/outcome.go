package scan

// Status classifies what happened to one symbol in the bulk pass.
type Status int

const (
	StatusOK          Status = iota // metric computed
	StatusNoData                    // valid but too little history; not retried
	StatusChunkFatal                // the bulk call for its chunk failed
	StatusSymbolFatal               // its columns were missing or malformed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoData:
		return "no_data"
	case StatusChunkFatal:
		return "chunk_fatal"
	case StatusSymbolFatal:
		return "symbol_fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether the recovery pass should try the symbol again.
func (s Status) Retryable() bool {
	return s == StatusChunkFatal || s == StatusSymbolFatal
}

// Outcome is the bulk pass verdict for one symbol.
type Outcome[M any] struct {
	Ticker string
	Status Status
	Metric *M // set only for StatusOK
	Err    error
}

// Pass is the result of one bulk pass, in input order.
type Pass[M any] struct {
	Outcomes []Outcome[M]
}

// Results maps every symbol the pass settled to its metric. No-data symbols
// map to nil; failed symbols are left out.
func (p Pass[M]) Results() map[string]*M {
	out := make(map[string]*M, len(p.Outcomes))
	for _, o := range p.Outcomes {
		if o.Status.Retryable() {
			continue
		}
		out[o.Ticker] = o.Metric
	}
	return out
}

// Failed lists the symbols eligible for recovery, in input order.
func (p Pass[M]) Failed() []string {
	var out []string
	for _, o := range p.Outcomes {
		if o.Status.Retryable() {
			out = append(out, o.Ticker)
		}
	}
	return out
}

// Count returns how many symbols ended with status s.
func (p Pass[M]) Count(s Status) int {
	n := 0
	for _, o := range p.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}
