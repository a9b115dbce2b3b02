package calculator

import "errors"

// CalculateSMA computes the simple moving average of the last `period` values.
func CalculateSMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, insufficient("sma", len(values), period)
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// CalculateVolumeRatio divides the latest volume by the SMA of the last `period`
// volumes (latest included). A zero average yields 1.0 so the ratio stays positive.
func CalculateVolumeRatio(volumes []float64, period int) (float64, error) {
	avg, err := CalculateSMA(volumes, period)
	if err != nil {
		var ide *InsufficientDataError
		if errors.As(err, &ide) {
			ide.Indicator = "volume_ratio"
		}
		return 0, err
	}
	if avg <= 0 {
		return 1.0, nil
	}
	ratio := volumes[len(volumes)-1] / avg
	if ratio <= 0 {
		// zero-volume bar in an otherwise active series
		return minPositiveRatio, nil
	}
	return ratio, nil
}

const minPositiveRatio = 1e-6
