package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"SignalScanner/internal/model"
)

// SQLiteRecorder persists signals and scan runs to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writers
	log *zap.SugaredLogger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.SugaredLogger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the dashboard and query modes read while the scanner writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infow("sqlite recorder opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id              TEXT PRIMARY KEY,
			run_id          TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			ts              INTEGER NOT NULL,
			bar_time        INTEGER NOT NULL,
			close           REAL,
			rsi             REAL,
			volume_ratio    REAL,
			momentum_score  REAL,
			signal_strength REAL,
			label           TEXT NOT NULL,
			direction       TEXT NOT NULL,
			factors         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals(symbol, ts)`,

		`CREATE TABLE IF NOT EXISTS scan_runs (
			id              TEXT PRIMARY KEY,
			started_at      INTEGER NOT NULL,
			finished_at     INTEGER NOT NULL,
			scan_window     TEXT,
			symbols_total   INTEGER,
			symbols_scanned INTEGER,
			signals_emitted INTEGER,
			error_count     INTEGER,
			errors          TEXT,
			sentiment       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON scan_runs(started_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSignal(ctx context.Context, sig model.Signal) error {
	args, err := signalArgs(sig)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStoreWriteFailed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.ExecContext(ctx, `INSERT INTO signals (`+signalColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	return nil
}

func (r *SQLiteRecorder) RecordScanRun(ctx context.Context, run model.RunSummary) error {
	args, err := runArgs(run)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStoreWriteFailed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.ExecContext(ctx, `INSERT OR REPLACE INTO scan_runs (`+runColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?)`, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	return nil
}

func (r *SQLiteRecorder) Signals(ctx context.Context, q Query) ([]model.Signal, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "ts >= ?", "ts < ?")
	args = append(args, toMillis(q.From, 0), toMillis(q.To, maxMillis))
	if q.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, q.Symbol)
	}
	args = append(args, limitOr(q.Limit, DefaultLimit))

	rows, err := r.db.QueryContext(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY ts DESC, id LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := []model.Signal{}
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) LatestSignal(ctx context.Context, symbol string) (*model.Signal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE symbol = ? ORDER BY ts DESC LIMIT 1`, symbol)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest signal: %w", err)
	}
	return &sig, nil
}

func (r *SQLiteRecorder) Stats(ctx context.Context, from, to time.Time, top int) (*model.SignalStats, error) {
	stats := newStats(from, to)
	lo, hi := toMillis(from, 0), toMillis(to, maxMillis)

	rows, err := r.db.QueryContext(ctx, `SELECT label, direction, COUNT(*) FROM signals
		WHERE ts >= ? AND ts < ? GROUP BY label, direction`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	for rows.Next() {
		var label, dir string
		var n int
		if err := rows.Scan(&label, &dir, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.Total += n
		stats.ByLabel[model.StrengthLabel(label)] += n
		stats.ByDirection[model.Direction(dir)] += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT symbol, COUNT(*) AS n FROM signals
		WHERE ts >= ? AND ts < ? GROUP BY symbol ORDER BY n DESC, symbol LIMIT ?`, lo, hi, limitOr(top, 10))
	if err != nil {
		return nil, fmt.Errorf("query top symbols: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc model.SymbolCount
		if err := rows.Scan(&sc.Symbol, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan top symbols: %w", err)
		}
		stats.TopSymbols = append(stats.TopSymbols, sc)
	}
	return stats, rows.Err()
}

func (r *SQLiteRecorder) RecentRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM scan_runs
		ORDER BY started_at DESC LIMIT ?`, limitOr(limit, 20))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []model.RunSummary{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Infow("closing sqlite recorder")
	return r.db.Close()
}
