package recorder

import (
	"encoding/json"
	"time"

	"SignalScanner/internal/model"
)

// rowScanner is satisfied by *sql.Row(s) and pgx.Row(s).
type rowScanner interface {
	Scan(dest ...any) error
}

const signalColumns = `id, run_id, symbol, ts, bar_time, close, rsi, volume_ratio,
	momentum_score, signal_strength, label, direction, factors`

func signalArgs(sig model.Signal) ([]any, error) {
	factors, err := json.Marshal(sig.Snapshot.Factors)
	if err != nil {
		return nil, err
	}
	s := sig.Snapshot
	return []any{
		sig.ID, sig.RunID, sig.Symbol, sig.Timestamp.UnixMilli(), s.Time.UnixMilli(),
		s.Close, s.RSI, s.VolumeRatio, s.MomentumScore, s.SignalStrength,
		string(sig.Label), string(sig.Direction), string(factors),
	}, nil
}

func scanSignal(row rowScanner) (model.Signal, error) {
	var (
		sig              model.Signal
		ts, barTime      int64
		label, direction string
		factors          string
	)
	err := row.Scan(&sig.ID, &sig.RunID, &sig.Symbol, &ts, &barTime,
		&sig.Snapshot.Close, &sig.Snapshot.RSI, &sig.Snapshot.VolumeRatio,
		&sig.Snapshot.MomentumScore, &sig.Snapshot.SignalStrength,
		&label, &direction, &factors)
	if err != nil {
		return sig, err
	}
	sig.Timestamp = time.UnixMilli(ts).UTC()
	sig.Snapshot.Time = time.UnixMilli(barTime).UTC()
	sig.Label = model.StrengthLabel(label)
	sig.Direction = model.Direction(direction)
	sig.Snapshot.Label = sig.Label
	sig.Snapshot.Direction = sig.Direction
	if factors != "" {
		_ = json.Unmarshal([]byte(factors), &sig.Snapshot.Factors)
	}
	return sig, nil
}

const runColumns = `id, started_at, finished_at, scan_window, symbols_total, symbols_scanned,
	signals_emitted, error_count, errors, sentiment`

func runArgs(run model.RunSummary) ([]any, error) {
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return nil, err
	}
	sentiment := ""
	if run.Sentiment.Band != "" {
		raw, err := json.Marshal(run.Sentiment)
		if err != nil {
			return nil, err
		}
		sentiment = string(raw)
	}
	return []any{
		run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), string(run.Window),
		run.SymbolsTotal, run.SymbolsScanned, run.SignalsEmitted, run.ErrorCount, string(errs),
		sentiment,
	}, nil
}

func scanRun(row rowScanner) (model.RunSummary, error) {
	var (
		run               model.RunSummary
		started, finished int64
		window, errs      string
		sentiment         *string
	)
	err := row.Scan(&run.ID, &started, &finished, &window, &run.SymbolsTotal,
		&run.SymbolsScanned, &run.SignalsEmitted, &run.ErrorCount, &errs, &sentiment)
	if err != nil {
		return run, err
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finished).UTC()
	run.Window = model.Window(window)
	if errs != "" && errs != "null" {
		_ = json.Unmarshal([]byte(errs), &run.Errors)
	}
	if sentiment != nil && *sentiment != "" {
		_ = json.Unmarshal([]byte(*sentiment), &run.Sentiment)
	}
	return run, nil
}

// toMillis maps an open bound to the far end of the range.
func toMillis(t time.Time, open int64) int64 {
	if t.IsZero() {
		return open
	}
	return t.UnixMilli()
}

const maxMillis = int64(1<<63 - 1)
