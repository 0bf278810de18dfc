package calculator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestSMASeries_TrimsWarmup(t *testing.T) {
	prices := rising(10, 1, 1)
	series, err := SMASeries(prices, 3)
	require.NoError(t, err)
	require.Len(t, series, 8)
	assert.InDelta(t, 2.0, series[0], 1e-9)
	assert.InDelta(t, 9.0, series[len(series)-1], 1e-9)

	_, err = SMASeries(prices[:2], 3)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = SMASeries(prices, 0)
	assert.Error(t, err)
}

func TestSlope(t *testing.T) {
	m, err := Slope(rising(30, 100, 1), 10)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m, 1e-9)

	m, err = Slope(rising(30, 100, -0.5), 10)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, m, 1e-9)

	_, err = Slope(rising(5, 1, 1), 10)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Slope(rising(5, 1, 1), 1)
	assert.Error(t, err)
}

func TestCalculateRSI(t *testing.T) {
	t.Run("strictly rising saturates at 100", func(t *testing.T) {
		rsi, err := CalculateRSI(rising(30, 10, 1), 14)
		require.NoError(t, err)
		assert.Equal(t, 100.0, rsi)
	})

	t.Run("strictly falling goes to 0", func(t *testing.T) {
		rsi, err := CalculateRSI(rising(30, 100, -1), 14)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, rsi, 1e-9)
	})

	t.Run("oscillation stays near the middle", func(t *testing.T) {
		closes := make([]float64, 60)
		for i := range closes {
			closes[i] = 10 + float64(i%2)
		}
		rsi, err := CalculateRSI(closes, 14)
		require.NoError(t, err)
		assert.InDelta(t, 50.0, rsi, 10.0)
	})

	t.Run("needs period+1 closes", func(t *testing.T) {
		_, err := CalculateRSI(rising(14, 10, 1), 14)
		assert.ErrorIs(t, err, ErrInsufficientData)
		_, err = CalculateRSI(rising(15, 10, 1), 14)
		assert.NoError(t, err)
	})
}

func TestStats(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(vals), 1e-12)
	assert.InDelta(t, 2.0, StdDev(vals, 0), 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev(vals, 1), 1e-12)
	assert.Equal(t, 0.0, StdDev([]float64{3}, 1))
	assert.Equal(t, 0.0, Mean(nil))

	z := ZNormalize(vals)
	assert.InDelta(t, 0.0, Mean(z), 1e-12)
	assert.InDelta(t, 1.0, StdDev(z, 0), 1e-12)

	flat := ZNormalize([]float64{3, 3, 3})
	assert.Equal(t, []float64{0, 0, 0}, flat)
}

func TestPearson(t *testing.T) {
	a := rising(10, 1, 1)
	b := rising(10, 50, 3)
	r, err := Pearson(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-12)

	r, err = Pearson(a, rising(10, 50, -2))
	require.NoError(t, err)
	assert.InDelta(t, -1.0, r, 1e-12)

	r, err = Pearson(a, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r)

	_, err = Pearson(a, a[:3])
	assert.Error(t, err)
}

func TestCalculateBollinger(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	b, err := CalculateBollinger(prices, 5, 2)
	require.NoError(t, err)
	sd := math.Sqrt(2.5)
	assert.InDelta(t, 3.0, b.Middle, 1e-12)
	assert.InDelta(t, 3+2*sd, b.Upper, 1e-12)
	assert.InDelta(t, 3-2*sd, b.Lower, 1e-12)
	assert.InDelta(t, 4*sd, b.Width(), 1e-12)

	_, err = CalculateBollinger(prices, 6, 2)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
