package model

import (
	"fmt"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Window is a lookback period accepted by the data sources.
type Window string

const (
	Window1Mo Window = "1mo"
	Window3Mo Window = "3mo"
	Window6Mo Window = "6mo"
	Window1Y  Window = "1y"
)

// Windows lists every supported lookback in ascending order.
var Windows = []Window{Window1Mo, Window3Mo, Window6Mo, Window1Y}

// ParseWindow validates a lookback string.
func ParseWindow(s string) (Window, error) {
	for _, w := range Windows {
		if string(w) == s {
			return w, nil
		}
	}
	return "", fmt.Errorf("unknown window %q (want one of 1mo, 3mo, 6mo, 1y)", s)
}

// TradingDays is the approximate number of daily bars the window spans.
func (w Window) TradingDays() int {
	switch w {
	case Window1Mo:
		return 22
	case Window3Mo:
		return 66
	case Window6Mo:
		return 128
	case Window1Y:
		return 252
	default:
		return 0
	}
}

// Series holds the daily bars fetched for one symbol.
type Series struct {
	Symbol    string    `json:"symbol"`
	Window    Window    `json:"window"`
	Bars      []OHLCV   `json:"bars"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Last returns the most recent bar. Callers must check Len first.
func (s *Series) Last() OHLCV {
	return s.Bars[len(s.Bars)-1]
}

// Len returns the number of bars.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Closes extracts the close prices.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the traded volumes.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// Highs extracts the bar highs.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the bar lows.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}
