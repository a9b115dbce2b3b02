// Package scheduler drives scan runs: once on demand, or recurring on cron
// entries with overrun suppression and an optional market-hours gate.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"SignalScanner/internal/metrics"
	"SignalScanner/internal/model"
	"SignalScanner/internal/report"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("scan already in progress")

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle    State = iota // no recurring schedule, nothing running
	StateRunning              // a scan is in progress
	StateWaiting              // recurring mode, waiting for the next tick
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	default:
		return "idle"
	}
}

// Runner performs one scan pass.
type Runner interface {
	Scan(ctx context.Context, universe []string, window model.Window) *model.ScanRun
}

// RunRecorder archives run summaries.
type RunRecorder interface {
	RecordScanRun(ctx context.Context, run model.RunSummary) error
}

// Options configures what is scanned and when.
type Options struct {
	Universe []string
	Window   model.Window

	Interval        time.Duration  // registered as "@every <Interval>" when > 0
	Crons           []string       // 5-field or 6-field (with seconds) cron specs
	Location        *time.Location // zone for cron specs; defaults to NewYork
	MarketHoursOnly bool
	RunOnStart      bool
	RunTimeout      time.Duration // 0 means no bound beyond the per-symbol timeouts
}

// Scheduler runs at most one scan at a time.
type Scheduler struct {
	runner  Runner
	store   RunRecorder
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
	opts    Options

	cron    *cron.Cron
	entries int
	crons   map[cron.EntryID]string // spec per cron-expression entry

	running   atomic.Bool
	recurring atomic.Bool
	state     atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	last *model.ScanRun

	now func() time.Time
}

// New registers the configured cron entries. store and m may be nil.
func New(runner Runner, store RunRecorder, opts Options, log *zap.SugaredLogger, m *metrics.Metrics) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.Location == nil {
		opts.Location = NewYork
	}
	s := &Scheduler{
		runner:  runner,
		store:   store,
		metrics: m,
		log:     log,
		opts:    opts,
		ctx:     context.Background(),
		crons:   make(map[cron.EntryID]string),
		now:     time.Now,
	}

	cl := cronLogger{log: log}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(opts.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)

	if opts.Interval > 0 {
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", opts.Interval), s.tick); err != nil {
			return nil, fmt.Errorf("register interval %s: %w", opts.Interval, err)
		}
		s.entries++
	}
	for _, spec := range opts.Crons {
		id, err := s.cron.AddFunc(spec, s.tick)
		if err != nil {
			return nil, fmt.Errorf("register cron %q: %w", spec, err)
		}
		s.crons[id] = spec
		s.entries++
	}
	s.setState(StateIdle)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Last returns the most recent finished run, or nil.
func (s *Scheduler) Last() *model.ScanRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Next returns the earliest upcoming tick, or the zero time when not started.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SetSchedulerState(int(st))
}

// Start begins recurring mode. Ticks run under ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.entries == 0 {
		return errors.New("no schedule configured: set an interval or at least one cron spec")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.recurring.Store(true)
	if !s.running.Load() {
		s.setState(StateWaiting)
	}
	if s.opts.MarketHoursOnly {
		for _, spec := range s.OffSessionCrons() {
			s.log.Warnw("cron entry never fires during market hours and will always be skipped",
				"spec", spec, "session", "09:30-16:00 America/New_York")
		}
	}
	s.cron.Start()
	s.log.Infow("scheduler started",
		"entries", s.entries, "next", s.Next(), "market_hours_only", s.opts.MarketHoursOnly)

	if s.opts.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	return nil
}

// Stop halts recurring mode and waits for an in-flight run. If ctx ends first
// the run is cancelled and Stop returns ctx's error once it has unwound.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.recurring.Store(false)
	cronDone := s.cron.Stop()

	finished := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = ctx.Err()
		if s.cancel != nil {
			s.cancel()
		}
		<-finished
	}
	if s.cancel != nil {
		s.cancel()
	}
	if !s.running.Load() {
		s.setState(StateIdle)
	}
	s.log.Infow("scheduler stopped")
	return err
}

// OffSessionCrons returns the cron specs with no firing inside the regular
// session over the coming week. With MarketHoursOnly those entries are dead.
func (s *Scheduler) OffSessionCrons() []string {
	var out []string
	for _, e := range s.cron.Entries() {
		spec, ok := s.crons[e.ID]
		if !ok {
			continue
		}
		if !firesInSession(e.Schedule, s.now().In(s.opts.Location)) {
			out = append(out, spec)
		}
	}
	sort.Strings(out)
	return out
}

func firesInSession(sched cron.Schedule, from time.Time) bool {
	end := from.AddDate(0, 0, 7)
	t := from
	for i := 0; i < 10000; i++ {
		t = sched.Next(t)
		if t.IsZero() || t.After(end) {
			return false
		}
		if IsMarketOpen(t) {
			return true
		}
	}
	return false
}

// tick is one scheduled trigger. It never starts a second concurrent run.
func (s *Scheduler) tick() {
	now := s.now()
	if s.opts.MarketHoursOnly && !IsMarketOpen(now) {
		s.metrics.SkipTick("market_closed")
		s.log.Infow("tick skipped outside market hours", "next_open", NextOpen(now))
		return
	}
	if _, err := s.RunOnce(s.ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.metrics.SkipTick("overrun")
			s.log.Warnw("tick skipped, previous scan still running")
			return
		}
		s.log.Errorw("scheduled scan failed", "error", err)
	}
}

// RunOnce performs a single scan, archives its summary and logs the report.
// It returns ErrRunInProgress if a scan is already active.
func (s *Scheduler) RunOnce(ctx context.Context) (*model.ScanRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	s.setState(StateRunning)
	defer func() {
		s.running.Store(false)
		if s.recurring.Load() {
			s.setState(StateWaiting)
		} else {
			s.setState(StateIdle)
		}
	}()

	run, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = run
	s.mu.Unlock()

	s.archive(ctx, run)
	s.log.Infow("scan finished",
		"run", run.ID, "scanned", run.SymbolsScanned, "total", run.SymbolsTotal,
		"signals", run.SignalsEmitted, "errors", len(run.Errors), "duration", run.Duration())
	s.log.Info("scan report\n" + report.FormatRun(run))
	return run, nil
}

func (s *Scheduler) scan(ctx context.Context) (run *model.ScanRun, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Errorw("scan panicked", "panic", p)
			run, err = nil, fmt.Errorf("scan panicked: %v", p)
		}
	}()
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}
	s.log.Infow("scan started", "symbols", len(s.opts.Universe), "window", s.opts.Window)
	return s.runner.Scan(ctx, s.opts.Universe, s.opts.Window), nil
}

func (s *Scheduler) archive(ctx context.Context, run *model.ScanRun) {
	if s.store == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.RecordScanRun(actx, run.Summary()); err != nil {
		s.log.Errorw("record scan run", "run", run.ID, "error", err)
	}
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
