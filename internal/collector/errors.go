package collector

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"SignalScanner/internal/model"
)

// FetchKind classifies upstream failures.
type FetchKind int

const (
	KindUnavailable FetchKind = iota
	KindNotFound
	KindRateLimited
)

func (k FetchKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindRateLimited:
		return "rate limited"
	default:
		return "unavailable"
	}
}

var (
	ErrNotFound    = errors.New("symbol not found")
	ErrUnavailable = errors.New("upstream unavailable")
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidRequest is returned for an empty symbol or an unknown window.
	ErrInvalidRequest = errors.New("invalid fetch request")
)

// FetchError is returned by every Source for upstream failures.
type FetchError struct {
	Kind   FetchKind
	Symbol string
	Err    error
	// RetryAfter is the delay the upstream asked for, if any (rate limiting only).
	RetryAfter time.Duration
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	}
	return false
}

func notFound(symbol string, err error) *FetchError {
	return &FetchError{Kind: KindNotFound, Symbol: symbol, Err: err}
}

func unavailable(symbol string, err error) *FetchError {
	return &FetchError{Kind: KindUnavailable, Symbol: symbol, Err: err}
}

func rateLimited(symbol string, retryAfter time.Duration) *FetchError {
	return &FetchError{Kind: KindRateLimited, Symbol: symbol, RetryAfter: retryAfter}
}

// statusError maps a non-200 HTTP status to a FetchError.
func statusError(symbol string, status int, retryAfter string, body []byte) *FetchError {
	switch {
	case status == http.StatusNotFound:
		return notFound(symbol, fmt.Errorf("status %d", status))
	case status == http.StatusTooManyRequests:
		return rateLimited(symbol, parseRetryAfter(retryAfter))
	default:
		if len(body) > 200 {
			body = body[:200]
		}
		return unavailable(symbol, fmt.Errorf("status %d, body: %s", status, body))
	}
}

// parseRetryAfter accepts the delay-seconds form of the Retry-After header.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func validate(symbol string, window model.Window) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidRequest)
	}
	if window.TradingDays() == 0 {
		return fmt.Errorf("%w: unknown window %q", ErrInvalidRequest, window)
	}
	return nil
}
