package model

import (
	"sort"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// PriceSeries is an ascending, timestamp-deduplicated run of daily bars for one symbol.
type PriceSeries struct {
	Symbol    string
	Bars      []OHLCV
	FetchedAt time.Time
}

// NewPriceSeries sorts bars ascending and drops duplicate timestamps, keeping the last bar seen for each.
func NewPriceSeries(symbol string, bars []OHLCV) *PriceSeries {
	sorted := make([]OHLCV, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	out := make([]OHLCV, 0, len(sorted))
	for _, b := range sorted {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return &PriceSeries{Symbol: symbol, Bars: out, FetchedAt: time.Now()}
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Empty reports whether the series has no bars.
func (s *PriceSeries) Empty() bool { return s.Len() == 0 }

// Last returns the most recent bar. Callers must check Empty first.
func (s *PriceSeries) Last() OHLCV { return s.Bars[len(s.Bars)-1] }

// Tail returns a series holding the trailing n bars (all bars when n exceeds the length).
func (s *PriceSeries) Tail(n int) *PriceSeries {
	if s == nil {
		return nil
	}
	if n < 0 {
		n = 0
	}
	start := s.Len() - n
	if start < 0 {
		start = 0
	}
	return &PriceSeries{Symbol: s.Symbol, Bars: s.Bars[start:], FetchedAt: s.FetchedAt}
}

// Closes extracts close prices in series order.
func (s *PriceSeries) Closes() []float64 {
	if s == nil {
		return nil
	}
	closes := make([]float64, s.Len())
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Volumes extracts volumes in series order.
func (s *PriceSeries) Volumes() []float64 {
	if s == nil {
		return nil
	}
	vols := make([]float64, s.Len())
	for i, b := range s.Bars {
		vols[i] = b.Volume
	}
	return vols
}

// Times extracts bar timestamps in series order.
func (s *PriceSeries) Times() []time.Time {
	if s == nil {
		return nil
	}
	ts := make([]time.Time, s.Len())
	for i, b := range s.Bars {
		ts[i] = b.Time
	}
	return ts
}
