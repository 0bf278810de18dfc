package calculator

import "fmt"

// Bands holds the latest Bollinger band values.
type Bands struct {
	Middle float64
	Upper  float64
	Lower  float64
	StdDev float64
}

// Width is the distance between upper and lower band.
func (b Bands) Width() float64 { return b.Upper - b.Lower }

// CalculateBollinger computes bands over the trailing window using the sample standard deviation.
func CalculateBollinger(prices []float64, window int, k float64) (Bands, error) {
	if window < 2 {
		return Bands{}, fmt.Errorf("bollinger window must be at least 2, got %d", window)
	}
	if len(prices) < window {
		return Bands{}, fmt.Errorf("bollinger(%d) over %d prices: %w", window, len(prices), ErrInsufficientData)
	}
	tail := prices[len(prices)-window:]
	mid := Mean(tail)
	sd := StdDev(tail, 1)
	return Bands{Middle: mid, Upper: mid + k*sd, Lower: mid - k*sd, StdDev: sd}, nil
}
