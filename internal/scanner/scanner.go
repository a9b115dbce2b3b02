// Package scanner runs one pass over a symbol universe: cache-then-source
// fetch, indicator computation, threshold and cooldown policy, and signal
// persistence. It is the only writer of signals.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"SignalScanner/internal/cache"
	"SignalScanner/internal/collector"
	"SignalScanner/internal/metrics"
	"SignalScanner/internal/model"
	"SignalScanner/internal/recorder"
	"SignalScanner/internal/strategy"
)

// Options tunes concurrency, timeouts and retry bounds.
type Options struct {
	Workers       int           // symbols scanned in parallel
	SymbolTimeout time.Duration // wall-clock bound per symbol
	SeriesTTL     time.Duration // how long a fetched series stays in the cache
	StoreRetries  int           // extra attempts for a failed signal write
	StoreBackoff  time.Duration // first retry delay; doubles per attempt

	// SentimentSymbol is read once per run for the market mood line.
	// Empty disables the read.
	SentimentSymbol string
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Workers:       8,
		SymbolTimeout: 30 * time.Second,
		SeriesTTL:     15 * time.Minute,
		StoreRetries:  3,
		StoreBackoff:  200 * time.Millisecond,

		SentimentSymbol: DefaultSentimentSymbol,
	}
}

// DefaultSentimentSymbol is the CBOE volatility index.
const DefaultSentimentSymbol = "^VIX"

// Scanner is safe for sequential reuse across runs; the scheduler guarantees
// at most one Scan at a time.
type Scanner struct {
	collector *collector.Collector
	engine    *strategy.Engine
	cache     cache.Cache // nil disables caching
	store     recorder.Recorder
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger
	opts      Options

	now func() time.Time
}

// New wires a scanner. cache and m may be nil.
func New(col *collector.Collector, engine *strategy.Engine, c cache.Cache, store recorder.Recorder,
	opts Options, log *zap.SugaredLogger, m *metrics.Metrics) *Scanner {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.SymbolTimeout <= 0 {
		opts.SymbolTimeout = def.SymbolTimeout
	}
	if opts.SeriesTTL <= 0 {
		opts.SeriesTTL = def.SeriesTTL
	}
	if opts.StoreRetries < 0 {
		opts.StoreRetries = 0
	}
	if opts.StoreBackoff <= 0 {
		opts.StoreBackoff = def.StoreBackoff
	}
	if store == nil {
		store = recorder.NewNoopRecorder()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scanner{
		collector: col,
		engine:    engine,
		cache:     c,
		store:     store,
		metrics:   m,
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

// Policy returns the signal policy in force.
func (s *Scanner) Policy() strategy.Policy { return s.engine.Policy }

// runState is shared by the symbol workers of one run.
type runState struct {
	id        string
	window    model.Window
	cacheDown atomic.Bool
	cacheErr  atomic.Value // first cache error message
}

func (rs *runState) markCacheDown(err error) {
	if rs.cacheDown.CompareAndSwap(false, true) {
		rs.cacheErr.Store(err.Error())
	}
}

type outcome struct {
	result  *model.SymbolResult
	signal  *model.Signal
	errs    []model.ScanError
	scanned bool
}

// Scan processes every symbol of the universe and never fails as a whole:
// per-symbol failures are recorded in the run's Errors.
func (s *Scanner) Scan(ctx context.Context, universe []string, window model.Window) *model.ScanRun {
	symbols := Normalize(universe)
	run := &model.ScanRun{
		ID:           uuid.NewString(),
		StartedAt:    s.now().UTC(),
		Window:       window,
		SymbolsTotal: len(symbols),
	}
	rs := &runState{id: run.ID, window: window}
	if s.opts.SentimentSymbol != "" {
		run.Sentiment = s.readSentiment(ctx)
	}

	outcomes := make([]outcome, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, sym := range symbols {
		g.Go(func() error {
			outcomes[i] = s.scanSymbol(gctx, rs, sym)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.result != nil {
			run.Results = append(run.Results, *o.result)
		}
		if o.scanned {
			run.SymbolsScanned++
		}
		if o.signal != nil {
			run.Signals = append(run.Signals, *o.signal)
		}
		run.Errors = append(run.Errors, o.errs...)
	}
	if rs.cacheDown.Load() {
		msg, _ := rs.cacheErr.Load().(string)
		run.Errors = append(run.Errors, model.ScanError{Kind: model.ErrKindCacheUnavailable, Message: msg})
	}
	run.SignalsEmitted = len(run.Signals)
	run.FinishedAt = s.now().UTC()

	s.metrics.ObserveRun(run)
	return run
}

func (s *Scanner) scanSymbol(ctx context.Context, rs *runState, symbol string) (out outcome) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Errorw("panic while scanning symbol", "symbol", symbol, "panic", p)
			out.errs = append(out.errs, model.ScanError{Symbol: symbol, Kind: model.ErrKindInternal, Message: fmt.Sprint(p)})
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.opts.SymbolTimeout)
	defer cancel()

	series, fromCache, err := s.loadSeries(ctx, rs, symbol)
	if err != nil {
		out.errs = append(out.errs, s.classify(symbol, err))
		return out
	}

	snap, err := s.engine.Compute(series)
	if err != nil {
		out.errs = append(out.errs, s.classify(symbol, err))
		return out
	}
	out.scanned = true
	res := &model.SymbolResult{Symbol: symbol, Snapshot: *snap, FromCache: fromCache}
	out.result = res

	if !s.engine.Policy.Qualifies(snap) {
		return out
	}
	res.Qualified = true

	allowed, claimed, err := s.checkCooldown(ctx, rs, symbol)
	if err != nil {
		out.errs = append(out.errs, model.ScanError{Symbol: symbol, Kind: model.ErrKindInternal, Message: err.Error()})
		return out
	}
	if !allowed {
		res.Suppressed = true
		s.log.Debugw("signal suppressed by cooldown", "symbol", symbol, "strength", snap.SignalStrength)
		return out
	}

	sig := model.Signal{
		ID:        uuid.NewString(),
		RunID:     rs.id,
		Symbol:    symbol,
		Timestamp: s.now().UTC(),
		Snapshot:  *snap,
		Label:     snap.Label,
		Direction: snap.Direction,
	}
	if err := s.persist(ctx, sig); err != nil {
		if claimed {
			s.releaseCooldown(ctx, rs, symbol)
		}
		s.log.Errorw("signal dropped", "symbol", symbol, "error", err)
		out.errs = append(out.errs, model.ScanError{Symbol: symbol, Kind: model.ErrKindStoreWriteFailed, Message: err.Error()})
		return out
	}
	res.Emitted = true
	out.signal = &sig
	s.log.Infow("signal emitted",
		"symbol", symbol, "label", sig.Label, "direction", sig.Direction,
		"strength", round2(snap.SignalStrength), "rsi", round2(snap.RSI),
		"volume_ratio", round2(snap.VolumeRatio), "momentum", round2(snap.MomentumScore))

	if s.cacheUsable(rs) {
		if err := s.cache.PushRecent(ctx, sig); err != nil {
			rs.markCacheDown(err)
		}
	}
	return out
}

func (s *Scanner) cacheUsable(rs *runState) bool {
	return s.cache != nil && !rs.cacheDown.Load()
}

// loadSeries consults the cache before the collector. Cache failures degrade
// to a miss for the rest of the run.
func (s *Scanner) loadSeries(ctx context.Context, rs *runState, symbol string) (*model.Series, bool, error) {
	key := cache.SeriesKey(symbol, rs.window, s.now())
	if s.cacheUsable(rs) {
		series, ok, err := s.cache.GetSeries(ctx, key)
		switch {
		case err != nil:
			s.metrics.CacheLookup("error")
			rs.markCacheDown(err)
			s.log.Warnw("cache unavailable, continuing without it", "error", err)
		case ok:
			s.metrics.CacheLookup("hit")
			return series, true, nil
		default:
			s.metrics.CacheLookup("miss")
		}
	}

	series, err := s.collector.Collect(ctx, symbol, rs.window)
	if err != nil {
		return nil, false, err
	}
	if s.cacheUsable(rs) {
		if err := s.cache.SetSeries(ctx, key, series, s.opts.SeriesTTL); err != nil {
			rs.markCacheDown(err)
		}
	}
	return series, false, nil
}

// checkCooldown decides whether a qualifying symbol may emit. The store's last
// signal time is checked first, then the cache claim makes the decision atomic.
// claimed reports whether a cache claim is held and must be released if the
// signal is not persisted.
func (s *Scanner) checkCooldown(ctx context.Context, rs *runState, symbol string) (allowed, claimed bool, err error) {
	cooldown := s.engine.Policy.Cooldown
	if cooldown <= 0 {
		return true, false, nil
	}

	storeChecked := false
	latest, storeErr := s.store.LatestSignal(ctx, symbol)
	if storeErr != nil {
		s.log.Warnw("cooldown lookup in store failed", "symbol", symbol, "error", storeErr)
	} else {
		storeChecked = true
		if latest != nil && s.now().Sub(latest.Timestamp) < cooldown {
			return false, false, nil
		}
	}

	if s.cacheUsable(rs) {
		ok, err := s.cache.ClaimCooldown(ctx, symbol, cooldown)
		if err == nil {
			return ok, ok, nil
		}
		rs.markCacheDown(err)
	}
	if !storeChecked {
		return false, false, fmt.Errorf("cooldown state unavailable: %w", storeErr)
	}
	return true, false, nil
}

func (s *Scanner) releaseCooldown(ctx context.Context, rs *runState, symbol string) {
	if s.cache == nil {
		return
	}
	// the symbol deadline may have passed; the release still has to go out
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.cache.ReleaseCooldown(rctx, symbol); err != nil {
		rs.markCacheDown(err)
		s.log.Warnw("release cooldown failed", "symbol", symbol, "error", err)
	}
}

// persist writes the signal with exponential back-off between attempts.
func (s *Scanner) persist(ctx context.Context, sig model.Signal) error {
	var lastErr error
	for attempt := 0; attempt <= s.opts.StoreRetries; attempt++ {
		err := s.store.RecordSignal(ctx, sig)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == s.opts.StoreRetries {
			break
		}
		backoff := s.opts.StoreBackoff << uint(attempt)
		s.log.Warnw("store write failed, retrying",
			"symbol", sig.Symbol, "attempt", attempt+1, "max_attempts", s.opts.StoreRetries+1,
			"backoff", backoff, "error", err)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %v (last error: %v)", recorder.ErrStoreWriteFailed, ctx.Err(), lastErr)
		case <-t.C:
		}
	}
	return fmt.Errorf("all %d attempts exhausted: %w", s.opts.StoreRetries+1, lastErr)
}

// readSentiment fetches the volatility index. Any failure yields the
// neutral reading; it never becomes a run error.
func (s *Scanner) readSentiment(ctx context.Context) model.Sentiment {
	sym := s.opts.SentimentSymbol
	ctx, cancel := context.WithTimeout(ctx, s.opts.SymbolTimeout)
	defer cancel()

	series, err := s.collector.Collect(ctx, sym, model.Window1Mo)
	if err != nil || len(series.Bars) == 0 {
		s.log.Warnw("market sentiment unavailable, assuming neutral", "symbol", sym, "error", err)
		return model.NeutralSentiment(sym)
	}
	last := series.Bars[len(series.Bars)-1].Close
	sent := model.NewSentiment(sym, last)
	s.log.Infow("market sentiment", "symbol", sym, "value", round2(last), "band", sent.Band)
	return sent
}

// classify maps a per-symbol failure onto the run's error taxonomy.
func (s *Scanner) classify(symbol string, err error) model.ScanError {
	kind := Kind(err)
	s.log.Warnw("symbol skipped", "symbol", symbol, "kind", kind, "error", err)
	return model.ScanError{Symbol: symbol, Kind: kind, Message: err.Error()}
}

// Normalize trims symbols, drops empties and duplicates, and keeps first-seen order.
func Normalize(universe []string) []string {
	seen := make(map[string]struct{}, len(universe))
	out := make([]string, 0, len(universe))
	for _, sym := range universe {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
