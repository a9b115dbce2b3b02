package scanner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/cache"
	"SignalScanner/internal/collector"
	"SignalScanner/internal/model"
	"SignalScanner/internal/recorder"
	"SignalScanner/internal/strategy"
)

var t0 = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

// spikeBars: 30 bars rising 2% a day, last bar on 1.2x volume.
func spikeBars() []model.OHLCV {
	bars := make([]model.OHLCV, 30)
	p := 50.0
	for i := range bars {
		if i > 0 {
			p *= 1.02
		}
		bars[i] = model.OHLCV{
			Time: t0.AddDate(0, 0, i-29), Open: p, High: p * 1.005, Low: p * 0.995, Close: p, Volume: 2_000_000,
		}
	}
	bars[29].Volume *= 1.2
	return bars
}

// flatBars: 30 bars chopping between two prices on low volume.
func flatBars() []model.OHLCV {
	bars := make([]model.OHLCV, 30)
	for i := range bars {
		c := 80.0
		if i%2 == 1 {
			c = 80.4
		}
		bars[i] = model.OHLCV{
			Time: t0.AddDate(0, 0, i-29), Open: c, High: c + 0.4, Low: c - 0.4, Close: c, Volume: 150_000,
		}
	}
	return bars
}

type fixture struct {
	src     *collector.MockSource
	cache   cache.Cache
	store   recorder.Recorder
	scanner *Scanner
	clock   *time.Time
}

func newFixture(t *testing.T, c cache.Cache, store recorder.Recorder, policy strategy.Policy) *fixture {
	t.Helper()
	src := collector.NewMockSource()
	src.Now = func() time.Time { return t0 }
	src.SetSeries("SPIKE", spikeBars())
	src.SetSeries("FLAT", flatBars())

	if store == nil {
		r, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "scan.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })
		store = r
	}

	col := collector.NewCollector(src, 1, time.Millisecond, time.Millisecond, nil)
	opts := Options{Workers: 4, SymbolTimeout: 2 * time.Second, SeriesTTL: time.Hour, StoreRetries: 2, StoreBackoff: time.Millisecond}
	s := New(col, strategy.NewEngine(policy), c, store, opts, nil, nil)

	clock := t0
	s.now = func() time.Time { return clock }
	if mc, ok := c.(*cache.MemoryCache); ok {
		mc.Now = func() time.Time { return clock }
	}
	return &fixture{src: src, cache: c, store: store, scanner: s, clock: &clock}
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func TestScan_EndToEnd(t *testing.T) {
	f := newFixture(t, cache.NewMemoryCache(10), nil, strategy.DefaultPolicy())

	run := f.scanner.Scan(context.Background(), []string{"SPIKE", "FLAT"}, model.Window3Mo)

	assert.Empty(t, run.Errors)
	assert.Equal(t, 2, run.SymbolsTotal)
	assert.Equal(t, 2, run.SymbolsScanned)
	require.Equal(t, 1, run.SignalsEmitted)
	require.Len(t, run.Signals, 1)

	sig := run.Signals[0]
	assert.Equal(t, "SPIKE", sig.Symbol)
	assert.Equal(t, model.LabelStrong, sig.Label)
	assert.Equal(t, model.Bullish, sig.Direction)
	assert.Equal(t, run.ID, sig.RunID)

	flat, ok := run.Result("FLAT")
	require.True(t, ok)
	assert.False(t, flat.Qualified)
	assert.False(t, flat.Emitted)

	stored, err := f.store.Signals(context.Background(), recorder.Query{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, sig.ID, stored[0].ID)

	recent, err := f.cache.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "SPIKE", recent[0].Symbol)
}

func TestScan_CooldownAcrossRuns(t *testing.T) {
	stores := map[string]func(t *testing.T) (cache.Cache, recorder.Recorder){
		"cache and store": func(t *testing.T) (cache.Cache, recorder.Recorder) { return cache.NewMemoryCache(10), nil },
		"cache only":      func(t *testing.T) (cache.Cache, recorder.Recorder) { return cache.NewMemoryCache(10), recorder.NewNoopRecorder() },
		"store only":      func(t *testing.T) (cache.Cache, recorder.Recorder) { return nil, nil },
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			c, st := mk(t)
			f := newFixture(t, c, st, strategy.DefaultPolicy())
			ctx := context.Background()

			total := 0
			for i := 0; i < 3; i++ {
				run := f.scanner.Scan(ctx, []string{"SPIKE"}, model.Window3Mo)
				total += run.SignalsEmitted
				res, ok := run.Result("SPIKE")
				require.True(t, ok)
				assert.True(t, res.Qualified)
				if i > 0 {
					assert.True(t, res.Suppressed, "run %d", i)
				}
				f.advance(time.Hour)
			}
			assert.Equal(t, 1, total)

			// 4h cooldown has now elapsed
			f.advance(2 * time.Hour)
			run := f.scanner.Scan(ctx, []string{"SPIKE"}, model.Window3Mo)
			assert.Equal(t, 1, run.SignalsEmitted)
		})
	}
}

func TestScan_ZeroCooldownEmitsEveryRun(t *testing.T) {
	p := strategy.DefaultPolicy()
	p.Cooldown = 0
	f := newFixture(t, cache.NewMemoryCache(10), nil, p)
	for i := 0; i < 2; i++ {
		f.advance(time.Minute)
		run := f.scanner.Scan(context.Background(), []string{"SPIKE"}, model.Window3Mo)
		assert.Equal(t, 1, run.SignalsEmitted)
	}
}

func TestScan_FetchErrorDoesNotAbort(t *testing.T) {
	f := newFixture(t, cache.NewMemoryCache(10), nil, strategy.DefaultPolicy())
	f.src.SetError("NOPE", &collector.FetchError{Kind: collector.KindNotFound, Symbol: "NOPE"})
	f.src.SetError("DOWN", &collector.FetchError{Kind: collector.KindUnavailable, Symbol: "DOWN"})

	run := f.scanner.Scan(context.Background(), []string{"SPIKE", "NOPE", "FLAT", "DOWN"}, model.Window3Mo)

	assert.Equal(t, 4, run.SymbolsTotal)
	assert.Equal(t, 2, run.SymbolsScanned)
	assert.Equal(t, 1, run.SignalsEmitted)
	_, ok := run.Result("SPIKE")
	assert.True(t, ok)
	_, ok = run.Result("FLAT")
	assert.True(t, ok)

	nope := run.ErrorsFor("NOPE")
	require.Len(t, nope, 1)
	assert.Equal(t, model.ErrKindNotFound, nope[0].Kind)
	down := run.ErrorsFor("DOWN")
	require.Len(t, down, 1)
	assert.Equal(t, model.ErrKindUnavailable, down[0].Kind)
	assert.Equal(t, 2, f.src.Calls("DOWN"), "unavailable is retried once")
}

func TestScan_InsufficientData(t *testing.T) {
	f := newFixture(t, nil, nil, strategy.DefaultPolicy())
	f.src.SetSeries("SHORT", spikeBars()[:10])

	run := f.scanner.Scan(context.Background(), []string{"SHORT", "SPIKE"}, model.Window1Mo)
	errs := run.ErrorsFor("SHORT")
	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrKindInsufficientData, errs[0].Kind)
	assert.Equal(t, 1, run.SignalsEmitted)
}

func TestScan_SymbolTimeout(t *testing.T) {
	f := newFixture(t, nil, nil, strategy.DefaultPolicy())
	f.scanner.opts.SymbolTimeout = 50 * time.Millisecond
	f.src.SetDelay("SLOW", time.Hour)

	start := time.Now()
	run := f.scanner.Scan(context.Background(), []string{"SLOW", "SPIKE"}, model.Window3Mo)
	assert.Less(t, time.Since(start), 10*time.Second)

	errs := run.ErrorsFor("SLOW")
	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrKindTimeout, errs[0].Kind)
	assert.Equal(t, 1, run.SignalsEmitted)
}

func TestScan_DeduplicatesUniverse(t *testing.T) {
	f := newFixture(t, nil, nil, strategy.DefaultPolicy())
	run := f.scanner.Scan(context.Background(), []string{"spike", "SPIKE", " ", "", "SPIKE "}, model.Window3Mo)
	assert.Equal(t, 1, run.SymbolsTotal)
	assert.Equal(t, 1, run.SignalsEmitted)
	assert.Equal(t, 1, f.src.Calls("SPIKE"))
}

func TestScan_UsesSeriesCache(t *testing.T) {
	p := strategy.DefaultPolicy()
	f := newFixture(t, cache.NewMemoryCache(10), nil, p)
	ctx := context.Background()

	first := f.scanner.Scan(ctx, []string{"FLAT"}, model.Window3Mo)
	second := f.scanner.Scan(ctx, []string{"FLAT"}, model.Window3Mo)

	r1, _ := first.Result("FLAT")
	r2, _ := second.Result("FLAT")
	assert.False(t, r1.FromCache)
	assert.True(t, r2.FromCache)
	assert.Equal(t, r1.Snapshot, r2.Snapshot)
	assert.Equal(t, 1, f.src.Calls("FLAT"))

	// past the TTL the series is fetched again
	f.advance(2 * time.Hour)
	third := f.scanner.Scan(ctx, []string{"FLAT"}, model.Window3Mo)
	r3, _ := third.Result("FLAT")
	assert.False(t, r3.FromCache)
	assert.Equal(t, 2, f.src.Calls("FLAT"))
}

// downCache fails every call.
type downCache struct{ calls int }

func (d *downCache) fail() error {
	d.calls++
	return errors.Join(cache.ErrCacheUnavailable, errors.New("connection refused"))
}

func (d *downCache) GetSeries(context.Context, string) (*model.Series, bool, error) {
	return nil, false, d.fail()
}
func (d *downCache) SetSeries(context.Context, string, *model.Series, time.Duration) error {
	return d.fail()
}
func (d *downCache) ClaimCooldown(context.Context, string, time.Duration) (bool, error) {
	return false, d.fail()
}
func (d *downCache) ReleaseCooldown(context.Context, string) error { return d.fail() }
func (d *downCache) PushRecent(context.Context, model.Signal) error { return d.fail() }
func (d *downCache) Recent(context.Context, int) ([]model.Signal, error) {
	return nil, d.fail()
}
func (d *downCache) Close() error { return nil }

func TestScan_CacheUnavailableDegrades(t *testing.T) {
	dc := &downCache{}
	f := newFixture(t, dc, nil, strategy.DefaultPolicy())
	f.scanner.opts.Workers = 1

	run := f.scanner.Scan(context.Background(), []string{"SPIKE", "FLAT"}, model.Window3Mo)

	assert.Equal(t, 2, run.SymbolsScanned)
	assert.Equal(t, 1, run.SignalsEmitted, "store fallback still allows the first signal")

	var cacheErrs int
	for _, e := range run.Errors {
		if e.Kind == model.ErrKindCacheUnavailable {
			cacheErrs++
		}
	}
	assert.Equal(t, 1, cacheErrs)
	assert.Equal(t, 1, dc.calls, "cache is not consulted again once down")

	// the store alone still enforces the cooldown
	run = f.scanner.Scan(context.Background(), []string{"SPIKE"}, model.Window3Mo)
	assert.Equal(t, 0, run.SignalsEmitted)
}

// failingStore refuses every write.
type failingStore struct {
	*recorder.NoopRecorder
	mu     sync.Mutex
	writes int
}

func (s *failingStore) RecordSignal(context.Context, model.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return errors.New("disk full")
}

func TestScan_StoreWriteFailedIsRecorded(t *testing.T) {
	st := &failingStore{NoopRecorder: recorder.NewNoopRecorder()}
	mc := cache.NewMemoryCache(10)
	f := newFixture(t, mc, st, strategy.DefaultPolicy())

	run := f.scanner.Scan(context.Background(), []string{"SPIKE"}, model.Window3Mo)

	assert.Equal(t, 0, run.SignalsEmitted)
	assert.Equal(t, 3, st.writes, "one attempt plus two retries")
	errs := run.ErrorsFor("SPIKE")
	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrKindStoreWriteFailed, errs[0].Kind)

	res, _ := run.Result("SPIKE")
	assert.True(t, res.Qualified)
	assert.False(t, res.Emitted)

	// the cooldown claim was released, so the next run may try again
	ok, err := mc.ClaimCooldown(context.Background(), "SPIKE", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT", "BRK.B"}, Normalize([]string{"aapl", " MSFT", "", "AAPL", "brk.b"}))
	assert.Empty(t, Normalize(nil))
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want model.ErrorKind
	}{
		{&collector.FetchError{Kind: collector.KindNotFound}, model.ErrKindNotFound},
		{&collector.FetchError{Kind: collector.KindRateLimited}, model.ErrKindRateLimited},
		{&collector.FetchError{Kind: collector.KindUnavailable}, model.ErrKindUnavailable},
		{context.DeadlineExceeded, model.ErrKindTimeout},
		{cache.ErrCacheUnavailable, model.ErrKindCacheUnavailable},
		{recorder.ErrStoreWriteFailed, model.ErrKindStoreWriteFailed},
		{errors.New("what"), model.ErrKindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "%v", tt.err)
	}
}

func vixBars(closes ...float64) []model.OHLCV {
	bars := make([]model.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = model.OHLCV{Time: t0.AddDate(0, 0, i-len(closes)+1), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func TestScan_ReadsSentiment(t *testing.T) {
	f := newFixture(t, nil, recorder.NewNoopRecorder(), strategy.DefaultPolicy())
	f.scanner.opts.SentimentSymbol = DefaultSentimentSymbol
	f.src.SetSeries("^VIX", vixBars(18.2, 24.9, 27.5))

	run := f.scanner.Scan(context.Background(), []string{"FLAT"}, model.Window3Mo)

	assert.Equal(t, model.Sentiment{Symbol: "^VIX", Value: 27.5, Band: model.SentimentWorried}, run.Sentiment)
	assert.Equal(t, run.Sentiment, run.Summary().Sentiment)
	assert.Equal(t, 1, f.src.Calls("^VIX"), "read once per run")
	assert.Empty(t, run.Errors)
	assert.Equal(t, 1, run.SymbolsTotal, "the index is not part of the universe")
}

func TestScan_SentimentFallsBackToNeutral(t *testing.T) {
	f := newFixture(t, nil, recorder.NewNoopRecorder(), strategy.DefaultPolicy())
	f.scanner.opts.SentimentSymbol = DefaultSentimentSymbol
	f.src.SetError("^VIX", &collector.FetchError{Kind: collector.KindNotFound, Symbol: "^VIX"})

	run := f.scanner.Scan(context.Background(), []string{"FLAT"}, model.Window3Mo)

	assert.Equal(t, model.NeutralSentiment("^VIX"), run.Sentiment)
	assert.True(t, run.Sentiment.Fallback)
	assert.Empty(t, run.Errors, "a missing index never fails the run")
	assert.Equal(t, 1, run.SymbolsScanned)
}

func TestScan_SentimentDisabled(t *testing.T) {
	f := newFixture(t, nil, recorder.NewNoopRecorder(), strategy.DefaultPolicy())

	run := f.scanner.Scan(context.Background(), []string{"FLAT"}, model.Window3Mo)

	assert.Zero(t, run.Sentiment)
	assert.Zero(t, f.src.Calls("^VIX"))
}
