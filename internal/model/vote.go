package model

import (
	"math"
	"time"
)

// Pillar groups related tools.
type Pillar string

const (
	PillarTechnicals   Pillar = "technicals"
	PillarFundamentals Pillar = "fundamentals"
	PillarSentiment    Pillar = "sentiment"
)

// Signal is the direction label carried by a Vote.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalHold Signal = "HOLD"
	SignalSell Signal = "SELL"
)

// Value returns the numeric vote for the signal: +1, 0 or -1.
func (s Signal) Value() int {
	switch s {
	case SignalBuy:
		return 1
	case SignalSell:
		return -1
	default:
		return 0
	}
}

// SignalFromSign maps the sign of x to BUY/SELL, zero to HOLD.
func SignalFromSign(x float64) Signal {
	switch {
	case x > 0:
		return SignalBuy
	case x < 0:
		return SignalSell
	default:
		return SignalHold
	}
}

// NeutralConfidence is reported when a tool has no evidence either way.
const NeutralConfidence = 0.5

// Vote is the uniform record every tool produces.
type Vote struct {
	Pillar     Pillar         `json:"pillar"`
	Tool       string         `json:"tool"`
	Signal     Signal         `json:"signal"`
	Vote       int            `json:"vote"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
	Data       map[string]any `json:"data"`
}

// NewVote builds a Vote whose numeric value always agrees with the signal and whose
// confidence is clamped to [0,1].
func NewVote(pillar Pillar, tool string, signal Signal, confidence float64, reason string, data map[string]any) Vote {
	if signal != SignalBuy && signal != SignalSell {
		signal = SignalHold
	}
	if data == nil {
		data = map[string]any{}
	}
	return Vote{
		Pillar:     pillar,
		Tool:       tool,
		Signal:     signal,
		Vote:       signal.Value(),
		Confidence: clampUnit(confidence),
		Reason:     reason,
		Data:       data,
	}
}

// HoldVote is a HOLD at neutral confidence.
func HoldVote(pillar Pillar, tool, reason string, data map[string]any) Vote {
	return NewVote(pillar, tool, SignalHold, NeutralConfidence, reason, data)
}

// Consistent reports whether the vote satisfies the signal/value/confidence contract.
func (v Vote) Consistent() bool {
	if v.Vote != v.Signal.Value() {
		return false
	}
	if v.Signal != SignalBuy && v.Signal != SignalSell && v.Signal != SignalHold {
		return false
	}
	return v.Confidence >= 0 && v.Confidence <= 1
}

func clampUnit(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(1, math.Max(0, x))
}

// ToolInput is everything a tool may read during one pass. Tools treat it as read-only.
type ToolInput struct {
	Ticker string
	Series *PriceSeries
	AsOf   time.Time
	RunID  int64
}
