package calculator

import (
	"errors"
	"math"
)

// CalculateRange scans the last `period` bars and returns the highest high and lowest low.
func CalculateRange(highs, lows []float64, period int) (high, low float64, err error) {
	if period <= 0 {
		return 0, 0, errors.New("period must be positive")
	}
	if len(highs) != len(lows) {
		return 0, 0, errors.New("highs and lows differ in length")
	}
	n := len(highs)
	if n < period {
		return 0, 0, insufficient("range", n, period)
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := n - period; i < n; i++ {
		if highs[i] > high {
			high = highs[i]
		}
		if lows[i] < low {
			low = lows[i]
		}
	}
	return high, low, nil
}

// CalculateRangePosition returns where the current price sits within [low, high] (0.0~1.0).
func CalculateRangePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	return clamp((current-low)/(high-low), 0, 1), nil
}
