package collector

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"SignalScanner/internal/model"
)

// MockSource serves fixed or synthetic series for demo mode and tests.
// Symbols without a fixed series get a deterministic random walk seeded by the symbol.
type MockSource struct {
	Now func() time.Time

	mu       sync.Mutex
	series   map[string][]model.OHLCV
	failures map[string]error
	delays   map[string]time.Duration
	calls    map[string]int
}

// NewMockSource creates an empty mock source.
func NewMockSource() *MockSource {
	return &MockSource{
		Now:      time.Now,
		series:   make(map[string][]model.OHLCV),
		failures: make(map[string]error),
		delays:   make(map[string]time.Duration),
		calls:    make(map[string]int),
	}
}

func (m *MockSource) Name() string { return "mock" }

// SetSeries pins the bars returned for a symbol.
func (m *MockSource) SetSeries(symbol string, bars []model.OHLCV) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[symbol] = bars
}

// SetError makes every fetch of symbol fail with err. A nil err clears it.
func (m *MockSource) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, symbol)
		return
	}
	m.failures[symbol] = err
}

// SetDelay makes fetches of symbol block for d or until the context ends.
func (m *MockSource) SetDelay(symbol string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[symbol] = d
}

// Calls returns how many times symbol was fetched.
func (m *MockSource) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

func (m *MockSource) Fetch(ctx context.Context, symbol string, window model.Window) (*model.Series, error) {
	if err := validate(symbol, window); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls[symbol]++
	fixed, hasFixed := m.series[symbol]
	failure := m.failures[symbol]
	delay := m.delays[symbol]
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if failure != nil {
		return nil, failure
	}

	var bars []model.OHLCV
	if hasFixed {
		bars = append([]model.OHLCV(nil), fixed...)
	} else {
		bars = generateMockBars(symbol, window.TradingDays(), m.Now())
	}
	return &model.Series{
		Symbol:    symbol,
		Window:    window,
		Bars:      bars,
		Source:    m.Name(),
		FetchedAt: m.Now().UTC(),
	}, nil
}

// generateMockBars walks a price from a symbol-derived base with a
// symbol-derived drift. The last bar ends on the UTC date of now.
func generateMockBars(symbol string, count int, now time.Time) []model.OHLCV {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	seed := h.Sum32()

	basePrice := 20 + float64(seed%480)
	drift := (float64(seed%7) - 3) * 0.003
	baseVolume := 1e6 * float64(1+seed%5)
	end := now.UTC().Truncate(24 * time.Hour)

	bars := make([]model.OHLCV, count)
	p := basePrice
	for i := 0; i < count; i++ {
		seed = seed*1664525 + 1013904223
		noise := (float64(seed%2001)/1000 - 1) * 0.01
		open := p
		p *= 1 + drift + noise
		volume := baseVolume * (0.7 + float64(seed%601)/1000)
		bars[i] = model.OHLCV{
			Time:   end.AddDate(0, 0, -(count - 1 - i)),
			Open:   open,
			High:   max(open, p) * 1.004,
			Low:    min(open, p) * 0.996,
			Close:  p,
			Volume: volume,
		}
	}
	return bars
}
