package scanner

import (
	"context"
	"errors"

	"SignalScanner/internal/cache"
	"SignalScanner/internal/calculator"
	"SignalScanner/internal/collector"
	"SignalScanner/internal/model"
	"SignalScanner/internal/recorder"
)

// Kind maps an error from any stage of the pipeline onto a ScanError kind.
func Kind(err error) model.ErrorKind {
	switch {
	case errors.Is(err, collector.ErrNotFound):
		return model.ErrKindNotFound
	case errors.Is(err, collector.ErrRateLimited):
		return model.ErrKindRateLimited
	case errors.Is(err, collector.ErrUnavailable):
		return model.ErrKindUnavailable
	case errors.Is(err, calculator.ErrInsufficientData):
		return model.ErrKindInsufficientData
	case errors.Is(err, context.DeadlineExceeded):
		return model.ErrKindTimeout
	case errors.Is(err, cache.ErrCacheUnavailable):
		return model.ErrKindCacheUnavailable
	case errors.Is(err, recorder.ErrStoreWriteFailed):
		return model.ErrKindStoreWriteFailed
	default:
		return model.ErrKindInternal
	}
}
