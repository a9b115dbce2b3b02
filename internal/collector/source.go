package collector

import (
	"context"

	"SignalScanner/internal/model"
)

// Source fetches daily OHLCV series from an upstream provider.
// Implementations must be safe for concurrent use.
type Source interface {
	Fetch(ctx context.Context, symbol string, window model.Window) (*model.Series, error)
	Name() string
}
