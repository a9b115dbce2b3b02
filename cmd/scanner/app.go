package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"SignalScanner/internal/cache"
	"SignalScanner/internal/collector"
	"SignalScanner/internal/config"
	"SignalScanner/internal/metrics"
	"SignalScanner/internal/recorder"
	"SignalScanner/internal/scanner"
	"SignalScanner/internal/scheduler"
	"SignalScanner/internal/strategy"
	"SignalScanner/internal/universe"
)

// app carries the process-wide handles every command builds from.
type app struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// openStore returns the read-write signal store for the configured driver.
func (a *app) openStore(ctx context.Context) (recorder.Recorder, error) {
	switch a.cfg.Store.Driver {
	case "sqlite":
		if dir := filepath.Dir(a.cfg.Store.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		return recorder.NewSQLiteRecorder(a.cfg.Store.SQLitePath, a.log)
	case "postgres":
		return recorder.NewPostgresRecorder(ctx, recorder.PostgresOptions{
			DSN:      a.cfg.Store.PostgresDSN,
			MaxConns: a.cfg.Store.MaxConns,
		}, a.log)
	default:
		a.log.Warnw("no durable store configured, signals will not be persisted")
		return recorder.NewNoopRecorder(), nil
	}
}

// openReader gives query modes read-only access to the store.
func (a *app) openReader(ctx context.Context) (recorder.Reader, error) {
	return a.openStore(ctx)
}

// openCache returns nil when caching is disabled. A Redis server that cannot
// be reached is logged and kept: the breaker degrades it to misses.
func (a *app) openCache(ctx context.Context) cache.Cache {
	c := a.cfg.Cache
	switch c.Driver {
	case "redis":
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:         c.Addr,
			Password:     c.Password,
			DB:           c.DB,
			Prefix:       c.Prefix,
			RecentMax:    c.RecentMax,
			OpTimeout:    c.OpTimeout,
			MaxFailures:  c.BreakerFailures,
			ResetTimeout: c.BreakerReset,
		})
		rc.Breaker().OnStateChange = func(from, to cache.BreakerState) {
			a.metrics.SetBreakerState(int(to), to == cache.BreakerOpen)
			a.log.Warnw("cache breaker state changed", "from", from, "to", to)
		}
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rc.Ping(pctx); err != nil {
			a.log.Warnw("redis unreachable, continuing in degraded mode", "addr", c.Addr, "error", err)
		}
		return rc
	case "memory":
		return cache.NewMemoryCache(c.RecentMax)
	default:
		return nil
	}
}

func (a *app) newSource() (collector.Source, error) {
	s := a.cfg.Source
	switch s.Provider {
	case "yahoo":
		return collector.NewYahooSource(s.BaseURL, s.Proxy, s.Timeout), nil
	case "rest":
		return collector.NewRESTSource(s.BaseURL, s.APIKey, s.Proxy, s.Timeout), nil
	case "mock":
		return collector.NewMockSource(), nil
	default:
		return nil, fmt.Errorf("unknown source provider %q", s.Provider)
	}
}

func (a *app) newScanner(store recorder.Recorder, c cache.Cache) (*scanner.Scanner, error) {
	src, err := a.newSource()
	if err != nil {
		return nil, err
	}
	a.log.Infow("data source selected", "source", src.Name())

	s := a.cfg.Source
	col := collector.NewCollector(src, s.Retries, s.Backoff, s.MaxBackoff, a.log)
	opts := scanner.Options{
		Workers:       a.cfg.Scanner.Workers,
		SymbolTimeout: a.cfg.Scanner.SymbolTimeout,
		SeriesTTL:     a.cfg.Cache.SeriesTTL,
		StoreRetries:  a.cfg.Scanner.StoreRetries,
		StoreBackoff:  a.cfg.Scanner.StoreBackoff,

		SentimentSymbol: a.cfg.Scanner.SentimentSymbol,
	}
	return scanner.New(col, strategy.NewEngine(a.cfg.Policy), c, store, opts, a.log, a.metrics), nil
}

func (a *app) universe() ([]string, error) {
	return universe.Resolve(a.cfg.Universe.Mode, a.cfg.Universe.Symbols, a.cfg.Universe.MaxSymbols)
}

func (a *app) newScheduler(sc *scanner.Scanner, store recorder.Recorder, symbols []string, recurring bool) (*scheduler.Scheduler, error) {
	sch := a.cfg.Schedule
	opts := scheduler.Options{
		Universe:        symbols,
		Window:          a.cfg.Window(),
		Location:        a.cfg.Location(),
		MarketHoursOnly: sch.MarketHoursOnly,
		RunOnStart:      sch.RunOnStart,
		RunTimeout:      sch.RunTimeout,
	}
	if recurring {
		opts.Interval = sch.Interval
		opts.Crons = sch.Crons
	}
	return scheduler.New(sc, store, opts, a.log, a.metrics)
}
