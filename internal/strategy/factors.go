package strategy

import (
	"math"

	"SignalScanner/internal/model"
)

// Factor names as they appear in reports.
const (
	FactorRSI      = "rsi_extremity"
	FactorVolume   = "volume_surge"
	FactorMomentum = "momentum"
)

// scoreRSIExtremity measures how far RSI sits from the neutral 50 line.
// Both overbought and oversold readings count as extreme.
func scoreRSIExtremity(rsi, weight float64) model.FactorScore {
	raw := math.Abs(rsi-50) / 50
	return factor(FactorRSI, raw, weight)
}

// scoreVolumeSurge maps the volume ratio onto [0, 1]: 1.0x or below scores 0,
// saturation (2.0x by default) or above scores 1.
func scoreVolumeSurge(ratio, saturation, weight float64) model.FactorScore {
	raw := 0.0
	if saturation > 1 {
		raw = (ratio - 1) / (saturation - 1)
	}
	return factor(FactorVolume, raw, weight)
}

// scoreMomentum measures the distance of the momentum score from neutral.
func scoreMomentum(momentum, weight float64) model.FactorScore {
	raw := math.Abs(momentum-50) / 50
	return factor(FactorMomentum, raw, weight)
}

func factor(name string, raw, weight float64) model.FactorScore {
	raw = math.Max(0, math.Min(1, raw))
	return model.FactorScore{
		Name:     name,
		Raw:      raw,
		Weight:   weight,
		Weighted: raw * weight,
	}
}
