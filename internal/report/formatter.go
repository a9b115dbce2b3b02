// Package report renders scan runs and stored signals as plain text for the
// command line and the scheduler log.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"SignalScanner/internal/model"
)

const (
	rule         = "────────────────────────────────────────────────────────────"
	maxFailed    = 10
	dateLayout   = "2006-01-02"
	minuteLayout = "2006-01-02 15:04"
)

// Action names the trade side a direction suggests.
func Action(d model.Direction) string {
	if d == model.Bearish {
		return "SHORT"
	}
	return "BUY"
}

// FormatRun summarizes a finished scan run.
func FormatRun(run *model.ScanRun) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Scan %s | %s | window %s\n", shortID(run.ID), run.StartedAt.Format(minuteLayout), run.Window))
	b.WriteString(rule + "\n")
	b.WriteString(fmt.Sprintf("Duration:       %.1fs\n", run.Duration().Seconds()))
	b.WriteString(fmt.Sprintf("Symbols:        %d scanned / %d total\n", run.SymbolsScanned, run.SymbolsTotal))
	if line := sentimentLine(run.Sentiment); line != "" {
		b.WriteString(fmt.Sprintf("Sentiment:      %s\n", line))
	}

	buy, short := countActions(run.Signals)
	b.WriteString(fmt.Sprintf("Signals:        %d (%d buy, %d short)\n", run.SignalsEmitted, buy, short))

	suppressed := 0
	for _, r := range run.Results {
		if r.Suppressed {
			suppressed++
		}
	}
	if suppressed > 0 {
		b.WriteString(fmt.Sprintf("Cooldown:       %d suppressed\n", suppressed))
	}

	if len(run.Signals) > 0 {
		b.WriteString("\n")
		b.WriteString(signalTable(run.Signals))
	}

	if len(run.Errors) > 0 {
		b.WriteString(fmt.Sprintf("\nErrors: %d\n", len(run.Errors)))
		byKind := map[model.ErrorKind][]string{}
		var kinds []string
		for _, e := range run.Errors {
			if _, ok := byKind[e.Kind]; !ok {
				kinds = append(kinds, string(e.Kind))
			}
			byKind[e.Kind] = append(byKind[e.Kind], e.Symbol)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			syms := compact(byKind[model.ErrorKind(k)])
			line := fmt.Sprintf("  %-20s %d", k, len(byKind[model.ErrorKind(k)]))
			if len(syms) > 0 {
				line += "  " + truncateList(syms, maxFailed)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// FormatToday lists the signals of one day. Counts come from st when given,
// so they stay exact when the listing is capped.
func FormatToday(day time.Time, signals []model.Signal, st *model.SignalStats) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Signals for %s\n", day.Format(dateLayout)))
	b.WriteString(rule + "\n")
	if len(signals) == 0 && (st == nil || st.Total == 0) {
		b.WriteString("No signals yet today.\n")
		return b.String()
	}
	total := len(signals)
	buy, short := countActions(signals)
	if st != nil {
		total, buy, short = st.Total, st.ByDirection[model.Bullish], st.ByDirection[model.Bearish]
	}
	b.WriteString(fmt.Sprintf("Total: %d | Buy: %d | Short: %d\n", total, buy, short))
	if total > len(signals) {
		b.WriteString(fmt.Sprintf("Showing the newest %d of %d.\n", len(signals), total))
	}
	b.WriteString("\n")
	b.WriteString(signalTable(signals))
	return b.String()
}

// FormatSignals renders a browse result.
func FormatSignals(q string, signals []model.Signal) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Signals %s: %d\n", q, len(signals)))
	b.WriteString(rule + "\n")
	if len(signals) == 0 {
		b.WriteString("No matching signals.\n")
		return b.String()
	}
	b.WriteString(signalTable(signals))
	return b.String()
}

// FormatStats renders aggregated signal statistics.
func FormatStats(st *model.SignalStats) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Signal statistics %s to %s\n", st.From.Format(dateLayout), st.To.Format(dateLayout)))
	b.WriteString(rule + "\n")
	b.WriteString(fmt.Sprintf("Total signals: %d\n", st.Total))
	if st.Total == 0 {
		return b.String()
	}

	b.WriteString("\nBy strength:\n")
	for _, l := range []model.StrengthLabel{model.LabelStrong, model.LabelModerate, model.LabelWeak, model.LabelNone} {
		if n := st.ByLabel[l]; n > 0 {
			b.WriteString(fmt.Sprintf("  %-10s %5d  %5.1f%%\n", l, n, pct(n, st.Total)))
		}
	}
	b.WriteString("\nBy direction:\n")
	for _, d := range []model.Direction{model.Bullish, model.Bearish} {
		n := st.ByDirection[d]
		b.WriteString(fmt.Sprintf("  %-10s %5d  %5.1f%%\n", Action(d), n, pct(n, st.Total)))
	}

	if len(st.TopSymbols) > 0 {
		b.WriteString("\nMost active symbols:\n")
		for i, sc := range st.TopSymbols {
			b.WriteString(fmt.Sprintf("  %2d. %-8s %d\n", i+1, sc.Symbol, sc.Count))
		}
	}
	return b.String()
}

// FormatRuns lists archived scan runs, newest first.
func FormatRuns(runs []model.RunSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Recent scan runs: %d\n", len(runs)))
	b.WriteString(rule + "\n")
	if len(runs) == 0 {
		return b.String()
	}
	b.WriteString(fmt.Sprintf("%-16s  %-8s  %-6s  %8s  %7s  %6s  %8s\n",
		"STARTED", "RUN", "WINDOW", "SCANNED", "SIGNALS", "ERRORS", "DURATION"))
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("%-16s  %-8s  %-6s  %4d/%-3d  %7d  %6d  %7.1fs\n",
			r.StartedAt.Format(minuteLayout), shortID(r.ID), r.Window,
			r.SymbolsScanned, r.SymbolsTotal, r.SignalsEmitted, r.ErrorCount,
			r.FinishedAt.Sub(r.StartedAt).Seconds()))
	}
	return b.String()
}

func signalTable(signals []model.Signal) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-16s  %-8s  %-5s  %-8s  %8s  %6s  %6s  %6s  %10s\n",
		"TIME", "SYMBOL", "SIDE", "LABEL", "STRENGTH", "RSI", "VOL", "MOM", "CLOSE"))
	for _, s := range signals {
		b.WriteString(fmt.Sprintf("%-16s  %-8s  %-5s  %-8s  %8.1f  %6.1f  %5.2fx  %6.1f  %10.2f\n",
			s.Timestamp.Format(minuteLayout), s.Symbol, Action(s.Direction), s.Label,
			s.Snapshot.SignalStrength, s.Snapshot.RSI, s.Snapshot.VolumeRatio,
			s.Snapshot.MomentumScore, s.Snapshot.Close))
	}
	return b.String()
}

func sentimentLine(st model.Sentiment) string {
	if st.Band == "" {
		return ""
	}
	line := fmt.Sprintf("%s %.2f (%s)", strings.TrimPrefix(st.Symbol, "^"), st.Value, strings.ReplaceAll(string(st.Band), "_", " "))
	if st.Fallback {
		line += ", index unavailable"
	}
	return line
}

func countActions(signals []model.Signal) (buy, short int) {
	for _, s := range signals {
		if s.Direction == model.Bearish {
			short++
		} else {
			buy++
		}
	}
	return buy, short
}

func compact(syms []string) []string {
	out := syms[:0:0]
	for _, s := range syms {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncateList(syms []string, n int) string {
	if len(syms) <= n {
		return strings.Join(syms, ", ")
	}
	return fmt.Sprintf("%s ...and %d more", strings.Join(syms[:n], ", "), len(syms)-n)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
