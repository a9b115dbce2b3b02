package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVIXBand(t *testing.T) {
	tests := []struct {
		vix  float64
		want SentimentBand
	}{
		{11.3, SentimentVeryOptimistic},
		{15, SentimentOptimistic},
		{19.99, SentimentOptimistic},
		{20, SentimentNeutral},
		{25, SentimentWorried},
		{29.9, SentimentWorried},
		{30, SentimentPanic},
		{82.7, SentimentPanic},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VIXBand(tt.vix), "vix %.2f", tt.vix)
	}
}

func TestNeutralSentiment(t *testing.T) {
	s := NeutralSentiment("^VIX")
	assert.Equal(t, NeutralVIX, s.Value)
	assert.Equal(t, SentimentNeutral, s.Band)
	assert.True(t, s.Fallback)
	assert.Equal(t, VIXBand(NeutralVIX), s.Band)
}
