package model

import "time"

// StrengthLabel is the ordinal bucket of a signal strength score.
type StrengthLabel string

const (
	LabelNone     StrengthLabel = "none"
	LabelWeak     StrengthLabel = "weak"
	LabelModerate StrengthLabel = "moderate"
	LabelStrong   StrengthLabel = "strong"
)

// Rank orders labels so they can be compared: none < weak < moderate < strong.
func (l StrengthLabel) Rank() int {
	switch l {
	case LabelWeak:
		return 1
	case LabelModerate:
		return 2
	case LabelStrong:
		return 3
	default:
		return 0
	}
}

// Direction tells which side of the market the indicators lean to.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// FactorScore is one weighted component of the signal strength.
type FactorScore struct {
	Name     string  `json:"name"`
	Raw      float64 `json:"raw"` // 0.0 ~ 1.0
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// IndicatorSnapshot holds the indicators computed for the latest bar of a series.
type IndicatorSnapshot struct {
	Time           time.Time     `json:"time"`
	Close          float64       `json:"close"`
	RSI            float64       `json:"rsi"`          // 0 ~ 100
	VolumeRatio    float64       `json:"volume_ratio"` // > 0
	MomentumScore  float64       `json:"momentum_score"`
	SignalStrength float64       `json:"signal_strength"` // 0 ~ 100
	Label          StrengthLabel `json:"label"`
	Direction      Direction     `json:"direction"`
	Factors        []FactorScore `json:"factors,omitempty"`
}
