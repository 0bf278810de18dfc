package technicals

import (
	"context"
	"errors"
	"fmt"

	"PillarVote/internal/calculator"
	"PillarVote/internal/model"
)

const (
	decisionConfidence = 0.6
	insufficientData   = "insufficient data"
)

// RSIParams configures the RSI tool.
type RSIParams struct {
	Period     int
	Oversold   float64
	Overbought float64
}

// RSI votes BUY when the relative strength index is oversold and SELL when overbought.
type RSI struct {
	params RSIParams
}

// NewRSI creates an RSI tool.
func NewRSI(p RSIParams) *RSI { return &RSI{params: p} }

func (t *RSI) Name() string          { return "RSI" }
func (t *RSI) Pillar() model.Pillar { return model.PillarTechnicals }

// Compute evaluates the latest RSI of the close series.
func (t *RSI) Compute(_ context.Context, in model.ToolInput) (model.Vote, error) {
	p := t.params
	val, err := calculator.CalculateRSI(in.Series.Closes(), p.Period)
	if errors.Is(err, calculator.ErrInsufficientData) {
		return model.HoldVote(t.Pillar(), t.Name(), insufficientData, nil), nil
	}
	if err != nil {
		return model.Vote{}, err
	}

	data := map[string]any{
		"last":       val,
		"period":     p.Period,
		"oversold":   p.Oversold,
		"overbought": p.Overbought,
	}
	switch {
	case val <= p.Oversold:
		reason := fmt.Sprintf("RSI %.1f <= %g", val, p.Oversold)
		return model.NewVote(t.Pillar(), t.Name(), model.SignalBuy, decisionConfidence, reason, data), nil
	case val >= p.Overbought:
		reason := fmt.Sprintf("RSI %.1f >= %g", val, p.Overbought)
		return model.NewVote(t.Pillar(), t.Name(), model.SignalSell, decisionConfidence, reason, data), nil
	default:
		reason := fmt.Sprintf("RSI %.1f between %g and %g", val, p.Oversold, p.Overbought)
		return model.HoldVote(t.Pillar(), t.Name(), reason, data), nil
	}
}
