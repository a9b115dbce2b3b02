package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"SignalScanner/internal/model"
)

// PostgresOptions configures the connection pool.
type PostgresOptions struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// PostgresRecorder persists signals and scan runs to PostgreSQL via pgx.
type PostgresRecorder struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

// NewPostgresRecorder connects, pings and runs migrations.
func NewPostgresRecorder(ctx context.Context, opts PostgresOptions, log *zap.SugaredLogger) (*PostgresRecorder, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "signal-scanner"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRecorder{pool: pool, log: log}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Infow("postgres recorder opened", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return r, nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id              TEXT PRIMARY KEY,
			run_id          TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			ts              BIGINT NOT NULL,
			bar_time        BIGINT NOT NULL,
			close           DOUBLE PRECISION,
			rsi             DOUBLE PRECISION,
			volume_ratio    DOUBLE PRECISION,
			momentum_score  DOUBLE PRECISION,
			signal_strength DOUBLE PRECISION,
			label           TEXT NOT NULL,
			direction       TEXT NOT NULL,
			factors         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals(symbol, ts)`,

		`CREATE TABLE IF NOT EXISTS scan_runs (
			id              TEXT PRIMARY KEY,
			started_at      BIGINT NOT NULL,
			finished_at     BIGINT NOT NULL,
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
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *PostgresRecorder) RecordSignal(ctx context.Context, sig model.Signal) error {
	args, err := signalArgs(sig)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStoreWriteFailed, err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO signals (`+signalColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	return nil
}

func (r *PostgresRecorder) RecordScanRun(ctx context.Context, run model.RunSummary) error {
	args, err := runArgs(run)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStoreWriteFailed, err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO scan_runs (`+runColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET finished_at = EXCLUDED.finished_at,
			symbols_scanned = EXCLUDED.symbols_scanned, signals_emitted = EXCLUDED.signals_emitted,
			error_count = EXCLUDED.error_count, errors = EXCLUDED.errors,
			sentiment = EXCLUDED.sentiment`, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	return nil
}

func (r *PostgresRecorder) Signals(ctx context.Context, q Query) ([]model.Signal, error) {
	where := []string{"ts >= $1", "ts < $2"}
	args := []any{toMillis(q.From, 0), toMillis(q.To, maxMillis)}
	if q.Symbol != "" {
		args = append(args, q.Symbol)
		where = append(where, fmt.Sprintf("symbol = $%d", len(args)))
	}
	args = append(args, limitOr(q.Limit, DefaultLimit))

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT `+signalColumns+` FROM signals
		WHERE %s ORDER BY ts DESC, id LIMIT $%d`, strings.Join(where, " AND "), len(args)), args...)
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

func (r *PostgresRecorder) LatestSignal(ctx context.Context, symbol string) (*model.Signal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE symbol = $1 ORDER BY ts DESC LIMIT 1`, symbol)
	sig, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest signal: %w", err)
	}
	return &sig, nil
}

func (r *PostgresRecorder) Stats(ctx context.Context, from, to time.Time, top int) (*model.SignalStats, error) {
	stats := newStats(from, to)
	lo, hi := toMillis(from, 0), toMillis(to, maxMillis)

	rows, err := r.pool.Query(ctx, `SELECT label, direction, COUNT(*) FROM signals
		WHERE ts >= $1 AND ts < $2 GROUP BY label, direction`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	for rows.Next() {
		var label, dir string
		var n int64
		if err := rows.Scan(&label, &dir, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.Total += int(n)
		stats.ByLabel[model.StrengthLabel(label)] += int(n)
		stats.ByDirection[model.Direction(dir)] += int(n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT symbol, COUNT(*) AS n FROM signals
		WHERE ts >= $1 AND ts < $2 GROUP BY symbol ORDER BY n DESC, symbol LIMIT $3`, lo, hi, limitOr(top, 10))
	if err != nil {
		return nil, fmt.Errorf("query top symbols: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sym string
		var n int64
		if err := rows.Scan(&sym, &n); err != nil {
			return nil, fmt.Errorf("scan top symbols: %w", err)
		}
		stats.TopSymbols = append(stats.TopSymbols, model.SymbolCount{Symbol: sym, Count: int(n)})
	}
	return stats, rows.Err()
}

func (r *PostgresRecorder) RecentRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM scan_runs
		ORDER BY started_at DESC LIMIT $1`, limitOr(limit, 20))
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

func (r *PostgresRecorder) Close() error {
	r.log.Infow("closing postgres recorder")
	r.pool.Close()
	return nil
}
