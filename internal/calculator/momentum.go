package calculator

import (
	"errors"
	"math"
)

// CalculateROC returns the percentage rate of change over `period` bars.
func CalculateROC(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(closes) < period+1 {
		return 0, insufficient("roc", len(closes), period+1)
	}
	base := closes[len(closes)-1-period]
	if base == 0 {
		return 0, errors.New("roc: zero base price")
	}
	return (closes[len(closes)-1]/base - 1) * 100, nil
}

// MomentumParams tunes CalculateMomentumScore.
type MomentumParams struct {
	Period    int     // ROC and range lookback
	ROCScale  float64 // ROC percentage mapped to ~76% of the half-range (tanh(1))
	ROCWeight float64 // share of the ROC component; the range position gets the rest
}

// CalculateMomentumScore blends the normalized ROC with the position of the last
// close inside the trailing high/low range. The result lies in [0, 100]; 50 means
// no net move.
func CalculateMomentumScore(closes, highs, lows []float64, p MomentumParams) (float64, error) {
	if p.ROCScale <= 0 {
		return 0, errors.New("roc scale must be positive")
	}
	if p.ROCWeight < 0 || p.ROCWeight > 1 {
		return 0, errors.New("roc weight must be within [0, 1]")
	}
	roc, err := CalculateROC(closes, p.Period)
	if err != nil {
		return 0, err
	}
	high, low, err := CalculateRange(highs, lows, p.Period)
	if err != nil {
		return 0, err
	}
	pos, err := CalculateRangePosition(closes[len(closes)-1], high, low)
	if err != nil {
		return 0, err
	}

	rocComponent := 50 + 50*math.Tanh(roc/p.ROCScale)
	score := p.ROCWeight*rocComponent + (1-p.ROCWeight)*pos*100
	return clamp(score, 0, 100), nil
}
