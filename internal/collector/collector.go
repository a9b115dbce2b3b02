package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"SignalScanner/internal/model"
)

// Collector wraps a Source with bounded retry and back-off.
type Collector struct {
	Source      Source
	MaxRetries  int           // extra attempts after the first for Unavailable/RateLimited
	BaseBackoff time.Duration // first back-off; doubles per attempt
	MaxBackoff  time.Duration

	log *zap.SugaredLogger
}

// NewCollector creates a Collector with the given retry bounds.
func NewCollector(src Source, maxRetries int, baseBackoff, maxBackoff time.Duration, log *zap.SugaredLogger) *Collector {
	if baseBackoff <= 0 {
		baseBackoff = time.Second
	}
	if maxBackoff < baseBackoff {
		maxBackoff = baseBackoff
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Collector{
		Source:      src,
		MaxRetries:  maxRetries,
		BaseBackoff: baseBackoff,
		MaxBackoff:  maxBackoff,
		log:         log,
	}
}

// Collect fetches a series, retrying Unavailable and RateLimited failures.
// NotFound and invalid requests are returned immediately. A RateLimited error
// carrying RetryAfter waits that long instead of the exponential back-off.
func (c *Collector) Collect(ctx context.Context, symbol string, window model.Window) (*model.Series, error) {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		series, err := c.Source.Fetch(ctx, symbol, window)
		if err == nil {
			return series, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == c.MaxRetries {
			break
		}

		wait := c.backoff(attempt)
		var fe *FetchError
		if errors.As(err, &fe) && fe.RetryAfter > 0 {
			wait = fe.RetryAfter
		}
		c.log.Warnw("fetch failed, retrying",
			"symbol", symbol, "source", c.Source.Name(),
			"attempt", attempt+1, "max_attempts", c.MaxRetries+1,
			"backoff", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("all %d attempts exhausted: %w", c.MaxRetries+1, lastErr)
}

func (c *Collector) backoff(attempt int) time.Duration {
	d := c.BaseBackoff << uint(attempt)
	if d <= 0 || d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

func retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}
