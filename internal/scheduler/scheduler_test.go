package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/metrics"
	"SignalScanner/internal/model"
)

type fakeRunner struct {
	calls   atomic.Int32
	block   chan struct{} // when non-nil, Scan waits for it to close
	started chan struct{}
	panics  bool
}

func (f *fakeRunner) Scan(ctx context.Context, universe []string, window model.Window) *model.ScanRun {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.panics {
		panic("boom")
	}
	now := time.Now()
	return &model.ScanRun{
		ID: "run-1", StartedAt: now, FinishedAt: now.Add(time.Second), Window: window,
		SymbolsTotal: len(universe), SymbolsScanned: len(universe),
	}
}

type memRuns struct {
	mu   sync.Mutex
	runs []model.RunSummary
	err  error
}

func (m *memRuns) RecordScanRun(_ context.Context, r model.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return m.err
}

func (m *memRuns) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func newTestScheduler(t *testing.T, r Runner, opts Options) (*Scheduler, *memRuns, *metrics.Metrics) {
	t.Helper()
	if opts.Universe == nil {
		opts.Universe = []string{"AAPL", "MSFT"}
	}
	if opts.Window == "" {
		opts.Window = model.Window3Mo
	}
	store := &memRuns{}
	m := metrics.New()
	s, err := New(r, store, opts, nil, m)
	require.NoError(t, err)
	return s, store, m
}

func TestRunOnce_RecordsAndReturnsToIdle(t *testing.T) {
	r := &fakeRunner{}
	s, store, _ := newTestScheduler(t, r, Options{})

	assert.Equal(t, StateIdle, s.State())
	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, run.SymbolsTotal)
	assert.Equal(t, StateIdle, s.State())
	assert.Same(t, run, s.Last())
	require.Equal(t, 1, store.count())
	assert.Equal(t, "run-1", store.runs[0].ID)
}

func TestRunOnce_StoreFailureDoesNotFailRun(t *testing.T) {
	s, store, _ := newTestScheduler(t, &fakeRunner{}, Options{})
	store.err = errors.New("database is locked")
	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, run)
}

func TestRunOnce_RecoversPanic(t *testing.T) {
	r := &fakeRunner{panics: true}
	s, store, _ := newTestScheduler(t, r, Options{})

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 0, store.count())

	r.panics = false
	_, err = s.RunOnce(context.Background())
	assert.NoError(t, err, "scheduler stays usable after a panic")
}

func TestTick_OverrunIsSuppressed(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s, _, m := newTestScheduler(t, r, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunOnce(context.Background())
	}()
	<-r.started
	assert.Equal(t, StateRunning, s.State())

	s.tick()
	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(r.block)
	<-done

	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedTicks.WithLabelValues("overrun")))
	assert.Equal(t, StateIdle, s.State())
}

func TestTick_MarketHoursGate(t *testing.T) {
	r := &fakeRunner{}
	s, _, m := newTestScheduler(t, r, Options{MarketHoursOnly: true})

	s.now = func() time.Time { return time.Date(2025, 3, 8, 11, 0, 0, 0, NewYork) } // Saturday
	s.tick()
	assert.Equal(t, int32(0), r.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedTicks.WithLabelValues("market_closed")))

	s.now = func() time.Time { return time.Date(2025, 3, 10, 11, 0, 0, 0, NewYork) } // Monday
	s.tick()
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestStartStop_RunOnStart(t *testing.T) {
	r := &fakeRunner{}
	s, store, m := newTestScheduler(t, r, Options{Interval: time.Hour, RunOnStart: true})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return store.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.State() == StateWaiting }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(StateWaiting), testutil.ToFloat64(m.SchedulerState))
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.Next(), 5*time.Second)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateIdle, s.State())
}

func TestStop_CancelsInFlightRunOnDeadline(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s, _, _ := newTestScheduler(t, r, Options{Interval: time.Hour, RunOnStart: true})

	require.NoError(t, s.Start(context.Background()))
	<-r.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateIdle, s.State())
}

func TestNew_Errors(t *testing.T) {
	_, err := New(&fakeRunner{}, nil, Options{Crons: []string{"not a cron"}}, nil, nil)
	assert.Error(t, err)

	s, err := New(&fakeRunner{}, nil, Options{}, nil, nil)
	require.NoError(t, err)
	assert.Error(t, s.Start(context.Background()))
}

func TestNew_AcceptsFiveAndSixFieldSpecs(t *testing.T) {
	_, err := New(&fakeRunner{}, nil, Options{Crons: []string{"0 9 * * 1-5", "0 30 10 * * 1-5"}}, nil, nil)
	assert.NoError(t, err)
}

func TestOffSessionCrons(t *testing.T) {
	s, _, _ := newTestScheduler(t, &fakeRunner{}, Options{
		Crons:           []string{"0 9 * * 1-5", "30 10 * * 1-5", "0 14 * * 1-5", "30 15 * * 1-5", "0 12 * * 6"},
		MarketHoursOnly: true,
	})
	assert.Equal(t, []string{"0 12 * * 6", "0 9 * * 1-5"}, s.OffSessionCrons())

	every, _, _ := newTestScheduler(t, &fakeRunner{}, Options{Interval: time.Hour})
	assert.Empty(t, every.OffSessionCrons(), "interval entries are not cron specs")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "waiting", StateWaiting.String())
}
