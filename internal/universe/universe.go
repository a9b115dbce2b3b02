// Package universe resolves the set of symbols a scan covers.
package universe

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultMaxSymbols caps a resolved universe when no limit is configured.
const DefaultMaxSymbols = 100

// Mode names a preset symbol list.
type Mode string

const (
	ModeDefault   Mode = "default"
	ModeDow30     Mode = "dow30"
	ModeMegaCap   Mode = "mega_cap"
	ModeTech      Mode = "tech"
	ModeFinancial Mode = "financial"
	ModeSP500     Mode = "sp500"
	ModeNasdaq100 Mode = "nasdaq100"
	ModeActive    Mode = "active"
	ModeBalanced  Mode = "balanced" // dow30 plus the first 50 of nasdaq100
	ModeCustom    Mode = "custom"   // only the configured symbols
)

// aliases maps legacy mode names onto presets.
var aliases = map[Mode]Mode{
	"financials": ModeFinancial,
}

var presets = map[Mode][]string{
	ModeDefault: {
		"AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA",
		"JPM", "BAC", "WFC", "C", "GS",
		"WMT", "HD", "MCD", "NKE", "SBUX",
	},
	ModeDow30: {
		"AAPL", "MSFT", "UNH", "GS", "HD", "MCD", "V", "CAT", "BA",
		"AXP", "JPM", "JNJ", "CRM", "PG", "CVX", "MRK", "WMT", "KO",
		"DIS", "MMM", "TRV", "NKE", "DOW", "IBM", "AMGN", "HON",
		"VZ", "CSCO", "INTC", "WBA",
	},
	ModeMegaCap: {
		"AAPL", "MSFT", "GOOGL", "GOOG", "AMZN", "META", "TSLA", "NVDA", "BRK-B",
		"UNH", "JNJ", "XOM", "JPM", "PG", "MA", "HD", "CVX", "LLY", "ABBV",
		"PFE", "BAC", "KO", "AVGO", "PEP", "TMO", "WMT", "COST", "MRK", "DIS",
		"ABT", "ACN", "ADBE", "VZ", "CRM", "DHR", "NKE", "ORCL", "TXN", "MCD",
	},
	ModeTech: {
		"AAPL", "MSFT", "GOOGL", "META", "AMZN", "NVDA", "TSLA", "NFLX", "ADBE",
		"CRM", "ORCL", "SNOW", "CRWD", "ZS", "OKTA", "NET", "DDOG", "MDB", "NOW",
		"WDAY", "ADSK", "INTU", "FTNT", "PANW", "AMD", "INTC", "QCOM", "AVGO",
		"TXN", "ADI", "LRCX", "KLAC", "AMAT", "NXPI", "MRVL", "SNPS", "CDNS",
		"SHOP", "UBER", "ABNB", "PYPL", "CSCO", "ANET",
	},
	ModeFinancial: {
		"JPM", "BAC", "WFC", "C", "GS", "MS", "COF", "USB", "PNC", "TFC",
		"V", "MA", "AXP", "DFS", "SYF", "BRK-B", "AIG", "MET", "PRU", "ALL",
		"TRV", "CB", "BLK", "SCHW", "SPGI", "MCO", "ICE", "CME", "NDAQ", "MSCI",
		"PYPL", "SOFI", "HOOD", "COIN",
	},
	ModeSP500: {
		"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "BRK-B",
		"UNH", "JNJ", "JPM", "V", "PG", "XOM", "HD", "CVX", "MA", "BAC",
		"ABBV", "PFE", "AVGO", "COST", "DIS", "KO", "MRK", "PEP", "TMO",
		"WMT", "ABT", "ACN", "CSCO", "LIN", "ADBE", "VZ", "CRM", "DHR",
		"NKE", "ORCL", "TXN", "MCD", "NEE", "PM", "RTX", "BMY", "HON",
		"QCOM", "UPS", "UNP", "T", "LOW", "SPGI", "COP", "AMD", "SBUX",
	},
	ModeNasdaq100: {
		"AAPL", "MSFT", "GOOGL", "GOOG", "AMZN", "NVDA", "META", "TSLA",
		"AVGO", "COST", "NFLX", "ADBE", "PEP", "CSCO", "CMCSA", "INTC",
		"TXN", "QCOM", "AMD", "INTU", "ISRG", "AMAT", "BKNG", "TMUS",
		"HON", "MU", "ADP", "VRTX", "SBUX", "GILD", "ADI", "MDLZ",
		"PYPL", "REGN", "ASML", "FISV", "CSX", "ATVI", "CHTR", "NXPI",
	},
	ModeActive: {
		"SPY", "QQQ", "AAPL", "TSLA", "NVDA", "AMD", "MSFT", "AMZN",
		"SOXL", "TQQQ", "META", "GOOGL", "IWM", "XLF", "PLTR", "F",
		"BAC", "SOFI", "RIVN", "NIO", "LCID", "BABA", "COIN", "AMC",
	},
}

const balancedNasdaqTop = 50

func init() {
	nasdaq := presets[ModeNasdaq100]
	if len(nasdaq) > balancedNasdaqTop {
		nasdaq = nasdaq[:balancedNasdaqTop]
	}
	presets[ModeBalanced] = dedupe(append(append([]string(nil), presets[ModeDow30]...), nasdaq...))
}

// Modes lists the known modes in alphabetical order.
func Modes() []Mode {
	out := make([]Mode, 0, len(presets)+1)
	for m := range presets {
		out = append(out, m)
	}
	out = append(out, ModeCustom)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseMode validates a mode name. An empty name selects the default list;
// legacy names such as "financials" resolve to their preset.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return ModeDefault, nil
	}
	if target, ok := aliases[m]; ok {
		m = target
	}
	if m == ModeCustom {
		return m, nil
	}
	if _, ok := presets[m]; !ok {
		return "", fmt.Errorf("unknown universe mode %q", s)
	}
	return m, nil
}

// Preset returns a copy of a preset list.
func Preset(m Mode) ([]string, bool) {
	p, ok := presets[m]
	if !ok {
		return nil, false
	}
	return append([]string(nil), p...), true
}

// Resolve builds the universe: the preset for mode followed by the extra
// symbols, normalized, deduplicated and capped at maxSymbols (DefaultMaxSymbols
// when <= 0). Custom mode with no symbols is an error.
func Resolve(mode string, symbols []string, maxSymbols int) ([]string, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if maxSymbols <= 0 {
		maxSymbols = DefaultMaxSymbols
	}

	var list []string
	if m != ModeCustom {
		list, _ = Preset(m)
	}
	list = append(list, symbols...)

	out := dedupe(list)
	if len(out) == 0 {
		return nil, fmt.Errorf("universe mode %q resolved to no symbols", m)
	}
	if len(out) > maxSymbols {
		out = out[:maxSymbols]
	}
	return out, nil
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
