package model

import "time"

// Signal is a persisted record of a symbol crossing the strength threshold.
type Signal struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	Symbol    string            `json:"symbol"`
	Timestamp time.Time         `json:"timestamp"`
	Snapshot  IndicatorSnapshot `json:"snapshot"`
	Label     StrengthLabel     `json:"label"`
	Direction Direction         `json:"direction"`
}

// ErrorKind classifies a per-symbol failure inside a scan run.
type ErrorKind string

const (
	ErrKindNotFound         ErrorKind = "not_found"
	ErrKindUnavailable      ErrorKind = "unavailable"
	ErrKindRateLimited      ErrorKind = "rate_limited"
	ErrKindInsufficientData ErrorKind = "insufficient_data"
	ErrKindCacheUnavailable ErrorKind = "cache_unavailable"
	ErrKindStoreWriteFailed ErrorKind = "store_write_failed"
	ErrKindTimeout          ErrorKind = "timeout"
	ErrKindInternal         ErrorKind = "internal"
)

// ScanError records a failure that did not abort the run.
type ScanError struct {
	Symbol  string    `json:"symbol,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// SymbolResult is the outcome of scanning one symbol.
type SymbolResult struct {
	Symbol     string            `json:"symbol"`
	Snapshot   IndicatorSnapshot `json:"snapshot"`
	FromCache  bool              `json:"from_cache"`
	Qualified  bool              `json:"qualified"`
	Emitted    bool              `json:"emitted"`
	Suppressed bool              `json:"suppressed"` // qualified but inside the cooldown window
}

// ScanRun summarizes one pass over the universe.
type ScanRun struct {
	ID             string         `json:"id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Window         Window         `json:"window"`
	SymbolsTotal   int            `json:"symbols_total"`
	SymbolsScanned int            `json:"symbols_scanned"`
	SignalsEmitted int            `json:"signals_emitted"`
	Sentiment      Sentiment      `json:"sentiment"`
	Results        []SymbolResult `json:"results,omitempty"`
	Signals        []Signal       `json:"signals,omitempty"`
	Errors         []ScanError    `json:"errors,omitempty"`
}

// Duration returns the wall-clock time the run took.
func (r *ScanRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Result looks up the result for a symbol.
func (r *ScanRun) Result(symbol string) (SymbolResult, bool) {
	for _, res := range r.Results {
		if res.Symbol == symbol {
			return res, true
		}
	}
	return SymbolResult{}, false
}

// ErrorsFor returns the errors recorded for a symbol.
func (r *ScanRun) ErrorsFor(symbol string) []ScanError {
	var out []ScanError
	for _, e := range r.Errors {
		if e.Symbol == symbol {
			out = append(out, e)
		}
	}
	return out
}

// RunSummary is the archived form of a ScanRun.
type RunSummary struct {
	ID             string      `json:"id"`
	StartedAt      time.Time   `json:"started_at"`
	FinishedAt     time.Time   `json:"finished_at"`
	Window         Window      `json:"window"`
	SymbolsTotal   int         `json:"symbols_total"`
	SymbolsScanned int         `json:"symbols_scanned"`
	SignalsEmitted int         `json:"signals_emitted"`
	ErrorCount     int         `json:"error_count"`
	Errors         []ScanError `json:"errors,omitempty"`
	Sentiment      Sentiment   `json:"sentiment"`
}

// Summary converts the run into its archived form.
func (r *ScanRun) Summary() RunSummary {
	return RunSummary{
		ID:             r.ID,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Window:         r.Window,
		SymbolsTotal:   r.SymbolsTotal,
		SymbolsScanned: r.SymbolsScanned,
		SignalsEmitted: r.SignalsEmitted,
		ErrorCount:     len(r.Errors),
		Errors:         r.Errors,
		Sentiment:      r.Sentiment,
	}
}

// SymbolCount pairs a symbol with a number of signals.
type SymbolCount struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
}

// SignalStats aggregates stored signals over a period.
type SignalStats struct {
	From        time.Time             `json:"from"`
	To          time.Time             `json:"to"`
	Total       int                   `json:"total"`
	ByLabel     map[StrengthLabel]int `json:"by_label"`
	ByDirection map[Direction]int     `json:"by_direction"`
	TopSymbols  []SymbolCount         `json:"top_symbols"`
}
