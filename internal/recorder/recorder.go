package recorder

import (
	"context"
	"errors"
	"time"

	"SignalScanner/internal/model"
)

// ErrStoreWriteFailed wraps every failed append.
var ErrStoreWriteFailed = errors.New("store write failed")

// Query selects stored signals. Zero From/To leave that side open; To is exclusive.
type Query struct {
	From   time.Time
	To     time.Time
	Symbol string
	Limit  int
}

// DefaultLimit applies when a query sets no limit.
const DefaultLimit = 500

// Reader is the read-only view handed to query modes and the HTTP API.
type Reader interface {
	// Signals returns matching signals, newest first.
	Signals(ctx context.Context, q Query) ([]model.Signal, error)
	// LatestSignal returns the newest signal for symbol, or nil if there is none.
	LatestSignal(ctx context.Context, symbol string) (*model.Signal, error)
	// Stats aggregates signals in [from, to), keeping the top N symbols.
	Stats(ctx context.Context, from, to time.Time, top int) (*model.SignalStats, error)
	// RecentRuns returns the newest scan run summaries.
	RecentRuns(ctx context.Context, limit int) ([]model.RunSummary, error)
	Close() error
}

// Recorder persists signals and scan runs. Only the scanner and the scheduler write.
type Recorder interface {
	Reader
	RecordSignal(ctx context.Context, sig model.Signal) error
	RecordScanRun(ctx context.Context, run model.RunSummary) error
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func newStats(from, to time.Time) *model.SignalStats {
	return &model.SignalStats{
		From:        from,
		To:          to,
		ByLabel:     make(map[model.StrengthLabel]int),
		ByDirection: make(map[model.Direction]int),
		TopSymbols:  []model.SymbolCount{},
	}
}
