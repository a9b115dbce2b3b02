package model

// SentimentBand is a coarse reading of the volatility index.
type SentimentBand string

const (
	SentimentVeryOptimistic SentimentBand = "very_optimistic"
	SentimentOptimistic     SentimentBand = "optimistic"
	SentimentNeutral        SentimentBand = "neutral"
	SentimentWorried        SentimentBand = "worried"
	SentimentPanic          SentimentBand = "panic"
)

// NeutralVIX is reported when the index cannot be read.
const NeutralVIX = 20.0

// Sentiment is the market mood read once at the start of a run.
type Sentiment struct {
	Symbol   string        `json:"symbol"`
	Value    float64       `json:"value"`
	Band     SentimentBand `json:"band"`
	Fallback bool          `json:"fallback,omitempty"` // the index was unavailable
}

// VIXBand buckets a VIX close: <15, <20, <25, <30, then panic.
func VIXBand(v float64) SentimentBand {
	switch {
	case v < 15:
		return SentimentVeryOptimistic
	case v < 20:
		return SentimentOptimistic
	case v < 25:
		return SentimentNeutral
	case v < 30:
		return SentimentWorried
	default:
		return SentimentPanic
	}
}

// NewSentiment reads a VIX-like close.
func NewSentiment(symbol string, close float64) Sentiment {
	return Sentiment{Symbol: symbol, Value: close, Band: VIXBand(close)}
}

// NeutralSentiment is the fallback when the index fetch fails.
func NeutralSentiment(symbol string) Sentiment {
	return Sentiment{Symbol: symbol, Value: NeutralVIX, Band: SentimentNeutral, Fallback: true}
}
