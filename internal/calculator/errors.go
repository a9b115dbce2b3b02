package calculator

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is matched by every InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError is returned when a series is shorter than an indicator lookback.
type InsufficientDataError struct {
	Indicator string
	Have      int
	Need      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: need %d bars, have %d", e.Indicator, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

func insufficient(indicator string, have, need int) error {
	return &InsufficientDataError{Indicator: indicator, Have: have, Need: need}
}
