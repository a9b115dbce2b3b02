package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/model"
)

// trendSeries builds n daily bars whose close moves by `step` (fraction) per bar.
// The final bar's volume is multiplied by lastVolMult.
func trendSeries(n int, step, lastVolMult float64) *model.Series {
	start := time.Date(2025, 1, 2, 21, 0, 0, 0, time.UTC)
	bars := make([]model.OHLCV, n)
	price := 100.0
	for i := range bars {
		if i > 0 {
			price *= 1 + step
		}
		bars[i] = model.OHLCV{
			Time:   start.AddDate(0, 0, i),
			Open:   price,
			High:   price * 1.005,
			Low:    price * 0.995,
			Close:  price,
			Volume: 1_000_000,
		}
	}
	bars[n-1].Volume *= lastVolMult
	return &model.Series{Symbol: "TEST", Window: model.Window3Mo, Bars: bars}
}

// choppySeries alternates between two closes on constant volume.
func choppySeries(n int) *model.Series {
	s := trendSeries(n, 0, 1)
	for i := range s.Bars {
		c := 100.0
		if i%2 == 1 {
			c = 100.5
		}
		s.Bars[i].Open, s.Bars[i].Close = c, c
		s.Bars[i].High, s.Bars[i].Low = c+0.5, c-0.5
		s.Bars[i].Volume = 200_000
	}
	return s
}

func TestCompute_StrongUptrendWithVolumeSpike(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	snap, err := e.Compute(trendSeries(30, 0.02, 1.2))
	require.NoError(t, err)

	assert.Equal(t, 100.0, snap.RSI)
	assert.Greater(t, snap.VolumeRatio, 1.0)
	assert.Greater(t, snap.MomentumScore, 90.0)
	assert.GreaterOrEqual(t, snap.SignalStrength, 70.0)
	assert.Equal(t, model.LabelStrong, snap.Label)
	assert.Equal(t, model.Bullish, snap.Direction)
	assert.True(t, e.Policy.Qualifies(snap))
	assert.Len(t, snap.Factors, 3)
}

func TestCompute_ChoppyLowVolume(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	snap, err := e.Compute(choppySeries(30))
	require.NoError(t, err)

	assert.InDelta(t, 50, snap.RSI, 10)
	assert.InDelta(t, 1.0, snap.VolumeRatio, 1e-9)
	assert.Less(t, snap.SignalStrength, 30.0)
	assert.Equal(t, model.LabelNone, snap.Label)
	assert.False(t, e.Policy.Qualifies(snap))
}

func TestCompute_Downtrend(t *testing.T) {
	snap, err := NewEngine(DefaultPolicy()).Compute(trendSeries(40, -0.02, 1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.RSI)
	assert.Less(t, snap.MomentumScore, 10.0)
	assert.Equal(t, model.Bearish, snap.Direction)
}

func TestCompute_InsufficientData(t *testing.T) {
	_, err := NewEngine(DefaultPolicy()).Compute(trendSeries(10, 0.01, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, calculator.ErrInsufficientData))

	var ide *calculator.InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 10, ide.Have)
	assert.Equal(t, 20, ide.Need)
}

func TestCompute_NilSeries(t *testing.T) {
	_, err := NewEngine(DefaultPolicy()).Compute(nil)
	assert.ErrorIs(t, err, calculator.ErrInsufficientData)
}

func TestCompute_Deterministic(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	s := trendSeries(60, 0.004, 1.7)
	first, err := e.Compute(s)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Compute(s)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompute_WeightsAreNormalized(t *testing.T) {
	p := DefaultPolicy()
	s := trendSeries(30, 0.01, 1.5)
	base, err := NewEngine(p).Compute(s)
	require.NoError(t, err)

	p.WeightRSI, p.WeightVolume, p.WeightMomentum = p.WeightRSI*3, p.WeightVolume*3, p.WeightMomentum*3
	scaled, err := NewEngine(p).Compute(s)
	require.NoError(t, err)
	assert.InDelta(t, base.SignalStrength, scaled.SignalStrength, 1e-9)
}

func TestPolicy_Label(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		strength float64
		want     model.StrengthLabel
	}{
		{100, model.LabelStrong},
		{70, model.LabelStrong},
		{69.99, model.LabelModerate},
		{50, model.LabelModerate},
		{30, model.LabelWeak},
		{29.9, model.LabelNone},
		{0, model.LabelNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Label(tt.strength), "strength %.2f", tt.strength)
	}
}

func TestPolicy_MinBars(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 20, p.MinBars())

	p.RSIPeriod = 30
	assert.Equal(t, 31, p.MinBars())

	p = DefaultPolicy()
	p.MomentumPeriod = 25
	assert.Equal(t, 26, p.MinBars())
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	bad := []func(p *Policy){
		func(p *Policy) { p.RSIPeriod = 0 },
		func(p *Policy) { p.ROCScale = 0 },
		func(p *Policy) { p.ROCWeight = 1.5 },
		func(p *Policy) { p.WeightRSI, p.WeightVolume, p.WeightMomentum = 0, 0, 0 },
		func(p *Policy) { p.WeightVolume = -1 },
		func(p *Policy) { p.VolumeSaturation = 1 },
		func(p *Policy) { p.WeakAt = 80 },
		func(p *Policy) { p.Threshold = 120 },
		func(p *Policy) { p.Cooldown = -time.Minute },
	}
	for i, mutate := range bad {
		p := DefaultPolicy()
		mutate(&p)
		assert.Error(t, p.Validate(), "case %d", i)
	}
}
