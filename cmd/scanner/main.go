package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"SignalScanner/internal/api"
	"SignalScanner/internal/config"
	"SignalScanner/internal/logger"
	"SignalScanner/internal/metrics"
	"SignalScanner/internal/model"
	"SignalScanner/internal/recorder"
	"SignalScanner/internal/report"
	"SignalScanner/internal/universe"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"run":      {"scan on the configured schedule until interrupted", cmdRun},
	"once":     {"run a single scan and print the report", cmdOnce},
	"today":    {"list today's signals with buy/short counts [-limit N]", cmdToday},
	"stats":    {"signal statistics [-days N]", cmdStats},
	"browse":   {"query signals [-symbol S] [-from D] [-to D] [-limit N]", cmdBrowse},
	"runs":     {"list recent scan runs [-limit N]", cmdRuns},
	"serve":    {"serve the read-only HTTP API and /metrics", cmdServe},
	"universe": {"print the resolved symbol universe [-mode M]", cmdUniverse},
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 2
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage()
		return 2
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()
	for _, w := range cfg.Warnings() {
		log.Warnw("config warning", "detail", w)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	if err := cmd.run(ctx, a, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		log.Errorw("command failed", "command", name, "error", err)
		return 1
	}
	return 0
}

func usage() {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "usage: scanner <command> [flags]")
	fmt.Fprintln(os.Stderr, "\ncommands:")
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", n, commands[n].summary)
	}
	fmt.Fprintf(os.Stderr, "\nconfig is read from $CONFIG_PATH (default %s)\n", config.DefaultPath)
}

func cmdRun(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	serve := fs.Bool("serve", true, "also serve the read-only API and /metrics on http.addr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	c := a.openCache(ctx)
	if c != nil {
		defer c.Close()
	}

	sc, err := a.newScanner(store, c)
	if err != nil {
		return err
	}
	symbols, err := a.universe()
	if err != nil {
		return err
	}
	sched, err := a.newScheduler(sc, store, symbols, true)
	if err != nil {
		return err
	}

	a.log.Infow("scanner starting",
		"mode", a.cfg.Universe.Mode, "symbols", len(symbols), "window", a.cfg.Window(),
		"threshold", sc.Policy().Threshold, "cooldown", sc.Policy().Cooldown)

	g, gctx := errgroup.WithContext(ctx)
	if *serve {
		srv := api.NewServer(store, c, a.metrics, a.cfg.Location(), a.log)
		g.Go(func() error { return srv.ListenAndServe(gctx, a.cfg.HTTP.Addr) })
	}
	if err := sched.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Infow("shutdown signal received, stopping")
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			a.log.Warnw("scan cancelled during shutdown", "error", err)
		}
		return nil
	})
	return g.Wait()
}

func cmdOnce(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("once", flag.ContinueOnError)
	symbolsFlag := fs.String("symbols", "", "comma-separated symbols instead of the configured universe")
	windowFlag := fs.String("window", "", "lookback window (1mo, 3mo, 6mo, 1y)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *windowFlag != "" {
		if _, err := model.ParseWindow(*windowFlag); err != nil {
			return err
		}
		a.cfg.Universe.Window = *windowFlag
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	c := a.openCache(ctx)
	if c != nil {
		defer c.Close()
	}

	sc, err := a.newScanner(store, c)
	if err != nil {
		return err
	}
	var symbols []string
	if *symbolsFlag != "" {
		symbols = strings.Split(*symbolsFlag, ",")
	} else if symbols, err = a.universe(); err != nil {
		return err
	}
	sched, err := a.newScheduler(sc, store, symbols, false)
	if err != nil {
		return err
	}

	run, err := sched.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Print(report.FormatRun(run))
	return nil
}

func cmdToday(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("today", flag.ContinueOnError)
	limit := fs.Int("limit", recorder.DefaultLimit, "maximum signals to list; counts always cover the whole day")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := a.openReader(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	from, to := report.DayBounds(time.Now(), a.cfg.Location())
	st, err := store.Stats(ctx, from, to, 1)
	if err != nil {
		return err
	}
	sigs, err := store.Signals(ctx, recorder.Query{From: from, To: to, Limit: *limit})
	if err != nil {
		return err
	}
	fmt.Print(report.FormatToday(from, sigs, st))
	return nil
}

func cmdStats(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	days := fs.Int("days", 7, "number of days to aggregate")
	top := fs.Int("top", 10, "number of most active symbols to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days <= 0 {
		return errors.New("-days must be positive")
	}
	store, err := a.openReader(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	_, to := report.DayBounds(time.Now(), a.cfg.Location())
	st, err := store.Stats(ctx, to.AddDate(0, 0, -*days), to, *top)
	if err != nil {
		return err
	}
	fmt.Print(report.FormatStats(st))
	return nil
}

func cmdBrowse(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "only this symbol")
	fromFlag := fs.String("from", "", "start date (YYYY-MM-DD or RFC 3339)")
	toFlag := fs.String("to", "", "end date, inclusive when given as YYYY-MM-DD")
	limit := fs.Int("limit", 50, "maximum signals to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	loc := a.cfg.Location()
	from, err := report.ParseBound(*fromFlag, false, loc)
	if err != nil {
		return err
	}
	to, err := report.ParseBound(*toFlag, true, loc)
	if err != nil {
		return err
	}

	store, err := a.openReader(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	q := recorder.Query{From: from, To: to, Symbol: strings.ToUpper(*symbol), Limit: *limit}
	sigs, err := store.Signals(ctx, q)
	if err != nil {
		return err
	}
	desc := "(all)"
	if q.Symbol != "" {
		desc = "for " + q.Symbol
	}
	fmt.Print(report.FormatSignals(desc, sigs))
	return nil
}

func cmdRuns(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := a.openReader(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	runs, err := store.RecentRuns(ctx, *limit)
	if err != nil {
		return err
	}
	fmt.Print(report.FormatRuns(runs))
	return nil
}

func cmdServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.HTTP.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := a.openReader(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	c := a.openCache(ctx)
	if c != nil {
		defer c.Close()
	}
	return api.NewServer(store, c, a.metrics, a.cfg.Location(), a.log).ListenAndServe(ctx, *addr)
}

func cmdUniverse(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("universe", flag.ContinueOnError)
	mode := fs.String("mode", a.cfg.Universe.Mode, "preset to resolve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	symbols, err := universe.Resolve(*mode, a.cfg.Universe.Symbols, a.cfg.Universe.MaxSymbols)
	if err != nil {
		return err
	}
	fmt.Printf("mode %s: %d symbols\n", *mode, len(symbols))
	for _, s := range symbols {
		fmt.Println(s)
	}
	return nil
}
