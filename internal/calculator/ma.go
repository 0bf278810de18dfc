package calculator

import (
	"errors"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

// ErrInsufficientData is returned when a series is shorter than the requested window.
var ErrInsufficientData = errors.New("insufficient data")

// SMASeries returns the rolling simple moving average, trimmed to the defined part:
// element i is the mean of prices[i : i+period].
func SMASeries(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}
	if len(prices) < period {
		return nil, fmt.Errorf("sma series(%d) over %d prices: %w", period, len(prices), ErrInsufficientData)
	}
	if period == 1 {
		return append([]float64(nil), prices...), nil
	}
	full := talib.Sma(prices, period)
	return full[period-1:], nil
}

// Slope returns the least-squares slope of the trailing window values, in units per step.
func Slope(values []float64, window int) (float64, error) {
	if window < 2 {
		return 0, errors.New("slope window must be at least 2")
	}
	if len(values) < window {
		return 0, fmt.Errorf("slope(%d) over %d values: %w", window, len(values), ErrInsufficientData)
	}
	tail := values[len(values)-window:]
	out := talib.LinearRegSlope(tail, window)
	m := out[len(out)-1]
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 0, fmt.Errorf("slope(%d): non-finite result", window)
	}
	return m, nil
}
