// Package cache holds the fast key/value layer in front of the data sources:
// fetched series keyed by symbol, window and UTC date, per-symbol cooldown
// claims, and a capped list of recently emitted signals.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalScanner/internal/model"
)

// ErrCacheUnavailable wraps every backend failure. Callers treat it as a miss.
var ErrCacheUnavailable = errors.New("cache unavailable")

// Cache must be safe for concurrent use.
type Cache interface {
	// GetSeries returns the cached series, or ok=false on a miss or expired entry.
	GetSeries(ctx context.Context, key string) (series *model.Series, ok bool, err error)
	SetSeries(ctx context.Context, key string, series *model.Series, ttl time.Duration) error

	// ClaimCooldown atomically marks symbol as emitted for ttl. It returns false
	// when a claim is already held.
	ClaimCooldown(ctx context.Context, symbol string, ttl time.Duration) (bool, error)
	ReleaseCooldown(ctx context.Context, symbol string) error

	// PushRecent prepends a signal to the recent list, trimming it to capacity.
	PushRecent(ctx context.Context, sig model.Signal) error
	RecentReader

	Close() error
}

// RecentReader is the read-only view of the recent-signals list.
type RecentReader interface {
	// Recent returns up to n signals, newest first.
	Recent(ctx context.Context, n int) ([]model.Signal, error)
}

// SeriesKey identifies a series fetched on the UTC date of t.
func SeriesKey(symbol string, window model.Window, t time.Time) string {
	return fmt.Sprintf("series:%s:%s:%s", symbol, window, t.UTC().Format("2006-01-02"))
}

func cooldownKey(symbol string) string {
	return "cooldown:" + symbol
}

const recentKey = "signals:recent"

// DefaultRecentMax caps the recent-signals list when no capacity is configured.
const DefaultRecentMax = 200
