package strategy

import (
	"errors"
	"fmt"
	"time"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/model"
)

// Policy holds the tunable constants of the signal strength formula and of the
// emission rules applied by the scanner.
type Policy struct {
	RSIPeriod      int `yaml:"rsi_period" env:"RSI_PERIOD"`
	VolumePeriod   int `yaml:"volume_period" env:"VOLUME_PERIOD"`
	MomentumPeriod int `yaml:"momentum_period" env:"MOMENTUM_PERIOD"`

	ROCScale  float64 `yaml:"roc_scale" env:"ROC_SCALE"`
	ROCWeight float64 `yaml:"roc_weight" env:"ROC_WEIGHT"`

	WeightRSI        float64 `yaml:"weight_rsi" env:"WEIGHT_RSI"`
	WeightVolume     float64 `yaml:"weight_volume" env:"WEIGHT_VOLUME"`
	WeightMomentum   float64 `yaml:"weight_momentum" env:"WEIGHT_MOMENTUM"`
	VolumeSaturation float64 `yaml:"volume_saturation" env:"VOLUME_SATURATION"`

	StrongAt   float64 `yaml:"strong_at" env:"STRONG_AT"`
	ModerateAt float64 `yaml:"moderate_at" env:"MODERATE_AT"`
	WeakAt     float64 `yaml:"weak_at" env:"WEAK_AT"`

	// Threshold is the minimum signal strength that qualifies for emission.
	Threshold float64       `yaml:"threshold" env:"THRESHOLD"`
	Cooldown  time.Duration `yaml:"cooldown" env:"COOLDOWN"`
}

// DefaultPolicy returns the documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		RSIPeriod:        14,
		VolumePeriod:     20,
		MomentumPeriod:   10,
		ROCScale:         10,
		ROCWeight:        0.7,
		WeightRSI:        0.35,
		WeightVolume:     0.25,
		WeightMomentum:   0.40,
		VolumeSaturation: 2.0,
		StrongAt:         70,
		ModerateAt:       50,
		WeakAt:           30,
		Threshold:        70,
		Cooldown:         4 * time.Hour,
	}
}

// MinBars is the shortest series Compute accepts.
func (p Policy) MinBars() int {
	n := p.RSIPeriod + 1
	if p.VolumePeriod > n {
		n = p.VolumePeriod
	}
	if p.MomentumPeriod+1 > n {
		n = p.MomentumPeriod + 1
	}
	return n
}

// Validate checks that the policy constants are usable.
func (p Policy) Validate() error {
	if p.RSIPeriod <= 0 || p.VolumePeriod <= 0 || p.MomentumPeriod <= 0 {
		return errors.New("indicator periods must be positive")
	}
	if p.ROCScale <= 0 {
		return errors.New("roc_scale must be positive")
	}
	if p.ROCWeight < 0 || p.ROCWeight > 1 {
		return errors.New("roc_weight must be within [0, 1]")
	}
	if p.WeightRSI < 0 || p.WeightVolume < 0 || p.WeightMomentum < 0 {
		return errors.New("factor weights must not be negative")
	}
	if p.WeightRSI+p.WeightVolume+p.WeightMomentum <= 0 {
		return errors.New("factor weights must not all be zero")
	}
	if p.VolumeSaturation <= 1 {
		return errors.New("volume_saturation must be greater than 1")
	}
	if !(p.WeakAt <= p.ModerateAt && p.ModerateAt <= p.StrongAt) {
		return errors.New("label cut-offs must satisfy weak_at <= moderate_at <= strong_at")
	}
	if p.Threshold < 0 || p.Threshold > 100 {
		return errors.New("threshold must be within [0, 100]")
	}
	if p.Cooldown < 0 {
		return errors.New("cooldown must not be negative")
	}
	return nil
}

// Label maps a strength score to its bucket.
func (p Policy) Label(strength float64) model.StrengthLabel {
	switch {
	case strength >= p.StrongAt:
		return model.LabelStrong
	case strength >= p.ModerateAt:
		return model.LabelModerate
	case strength >= p.WeakAt:
		return model.LabelWeak
	default:
		return model.LabelNone
	}
}

// Qualifies reports whether a snapshot is strong enough to emit a signal.
func (p Policy) Qualifies(s *model.IndicatorSnapshot) bool {
	return s != nil && s.SignalStrength >= p.Threshold
}

// Engine turns a price series into an indicator snapshot for its latest bar.
// It holds no state besides the policy and is safe for concurrent use.
type Engine struct {
	Policy Policy
}

// NewEngine creates an engine for the given policy.
func NewEngine(p Policy) *Engine {
	return &Engine{Policy: p}
}

// Compute derives RSI, volume ratio, momentum score and the composite signal
// strength for the last bar of the series.
func (e *Engine) Compute(series *model.Series) (*model.IndicatorSnapshot, error) {
	p := e.Policy
	if need := p.MinBars(); series.Len() < need {
		return nil, &calculator.InsufficientDataError{Indicator: "series", Have: series.Len(), Need: need}
	}

	closes := series.Closes()
	rsi, err := calculator.CalculateRSI(closes, p.RSIPeriod)
	if err != nil {
		return nil, fmt.Errorf("rsi: %w", err)
	}
	volRatio, err := calculator.CalculateVolumeRatio(series.Volumes(), p.VolumePeriod)
	if err != nil {
		return nil, fmt.Errorf("volume ratio: %w", err)
	}
	momentum, err := calculator.CalculateMomentumScore(closes, series.Highs(), series.Lows(), calculator.MomentumParams{
		Period:    p.MomentumPeriod,
		ROCScale:  p.ROCScale,
		ROCWeight: p.ROCWeight,
	})
	if err != nil {
		return nil, fmt.Errorf("momentum: %w", err)
	}

	// Weights are normalized so the strength always spans 0~100.
	total := p.WeightRSI + p.WeightVolume + p.WeightMomentum
	factors := []model.FactorScore{
		scoreRSIExtremity(rsi, p.WeightRSI/total),
		scoreVolumeSurge(volRatio, p.VolumeSaturation, p.WeightVolume/total),
		scoreMomentum(momentum, p.WeightMomentum/total),
	}
	strength := 0.0
	for _, f := range factors {
		strength += f.Weighted
	}
	strength = clampScore(strength * 100)

	dir := model.Bearish
	if momentum >= 50 {
		dir = model.Bullish
	}

	last := series.Last()
	return &model.IndicatorSnapshot{
		Time:           last.Time,
		Close:          last.Close,
		RSI:            rsi,
		VolumeRatio:    volRatio,
		MomentumScore:  momentum,
		SignalStrength: strength,
		Label:          p.Label(strength),
		Direction:      dir,
		Factors:        factors,
	}, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
