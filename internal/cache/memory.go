package cache

import (
	"context"
	"sync"
	"time"

	"SignalScanner/internal/model"
)

type memEntry struct {
	series  *model.Series
	expires time.Time
}

// MemoryCache is an in-process Cache used when no Redis address is configured.
type MemoryCache struct {
	Now func() time.Time

	mu        sync.Mutex
	series    map[string]memEntry
	cooldowns map[string]time.Time
	recent    []model.Signal
	recentMax int
}

// NewMemoryCache creates an empty cache keeping up to recentMax recent signals.
func NewMemoryCache(recentMax int) *MemoryCache {
	if recentMax <= 0 {
		recentMax = DefaultRecentMax
	}
	return &MemoryCache{
		Now:       time.Now,
		series:    make(map[string]memEntry),
		cooldowns: make(map[string]time.Time),
		recentMax: recentMax,
	}
}

func (m *MemoryCache) GetSeries(_ context.Context, key string) (*model.Series, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.series[key]
	if !ok {
		return nil, false, nil
	}
	if !m.Now().Before(e.expires) {
		delete(m.series, key)
		return nil, false, nil
	}
	cp := *e.series
	cp.Bars = append([]model.OHLCV(nil), e.series.Bars...)
	return &cp, true, nil
}

func (m *MemoryCache) SetSeries(_ context.Context, key string, series *model.Series, ttl time.Duration) error {
	cp := *series
	cp.Bars = append([]model.OHLCV(nil), series.Bars...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[key] = memEntry{series: &cp, expires: m.Now().Add(ttl)}
	return nil
}

func (m *MemoryCache) ClaimCooldown(_ context.Context, symbol string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if until, ok := m.cooldowns[symbol]; ok && now.Before(until) {
		return false, nil
	}
	m.cooldowns[symbol] = now.Add(ttl)
	return true, nil
}

func (m *MemoryCache) ReleaseCooldown(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cooldowns, symbol)
	return nil
}

func (m *MemoryCache) PushRecent(_ context.Context, sig model.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append([]model.Signal{sig}, m.recent...)
	if len(m.recent) > m.recentMax {
		m.recent = m.recent[:m.recentMax]
	}
	return nil
}

func (m *MemoryCache) Recent(_ context.Context, n int) ([]model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.recent) {
		n = len(m.recent)
	}
	return append([]model.Signal(nil), m.recent[:n]...), nil
}

func (m *MemoryCache) Close() error { return nil }
