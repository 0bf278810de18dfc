package calculator

import (
	"errors"
	"math"
)

// Mean returns the arithmetic mean; zero for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the standard deviation with the given delta degrees of freedom
// (0 for population, 1 for sample). Returns 0 when len(values) <= ddof.
func StdDev(values []float64, ddof int) float64 {
	n := len(values)
	if n <= ddof {
		return 0
	}
	mu := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-ddof))
}

// ZNormalize rescales values to zero mean and unit population deviation.
// A constant slice is only centred.
func ZNormalize(values []float64) []float64 {
	mu := Mean(values)
	sd := StdDev(values, 0)
	if sd == 0 {
		sd = 1
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mu) / sd
	}
	return out
}

// Pearson returns the correlation coefficient of a and b. Degenerate inputs
// (a constant side) correlate at 0.
func Pearson(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New("pearson: length mismatch")
	}
	if len(a) < 2 {
		return 0, ErrInsufficientData
	}
	ma, mb := Mean(a), Mean(b)
	var sab, saa, sbb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		sab += da * db
		saa += da * da
		sbb += db * db
	}
	if saa == 0 || sbb == 0 {
		return 0, nil
	}
	r := sab / math.Sqrt(saa*sbb)
	return math.Max(-1, math.Min(1, r)), nil
}
