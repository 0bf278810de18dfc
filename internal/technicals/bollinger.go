package technicals

import (
	"context"
	"errors"
	"fmt"
	"math"

	"PillarVote/internal/calculator"
	"PillarVote/internal/model"
)

// BollingerParams configures the band tool.
type BollingerParams struct {
	Window        int
	K             float64
	EqualIsInside bool
}

// Bollinger votes SELL above the upper band and BUY below the lower band.
type Bollinger struct {
	params BollingerParams
}

// NewBollinger creates a Bollinger band tool.
func NewBollinger(p BollingerParams) *Bollinger { return &Bollinger{params: p} }

func (t *Bollinger) Name() string          { return "BOLLINGER" }
func (t *Bollinger) Pillar() model.Pillar { return model.PillarTechnicals }

// Compute compares the latest close with bands over the trailing window.
// Confidence grows with the breach distance relative to band width, capped at 0.9.
func (t *Bollinger) Compute(_ context.Context, in model.ToolInput) (model.Vote, error) {
	p := t.params
	closes := in.Series.Closes()
	bands, err := calculator.CalculateBollinger(closes, p.Window, p.K)
	if errors.Is(err, calculator.ErrInsufficientData) {
		return model.HoldVote(t.Pillar(), t.Name(), insufficientData, nil), nil
	}
	if err != nil {
		return model.Vote{}, err
	}

	price := closes[len(closes)-1]
	signal := model.SignalHold
	outside := 0.0
	if p.EqualIsInside {
		switch {
		case price > bands.Upper:
			signal, outside = model.SignalSell, price-bands.Upper
		case price < bands.Lower:
			signal, outside = model.SignalBuy, bands.Lower-price
		}
	} else {
		switch {
		case price >= bands.Upper:
			signal, outside = model.SignalSell, math.Max(0, price-bands.Upper)
		case price <= bands.Lower:
			signal, outside = model.SignalBuy, math.Max(0, bands.Lower-price)
		}
	}

	outsideFrac := math.Min(2, math.Max(0, outside)/math.Max(1e-9, bands.Width()))
	data := map[string]any{
		"price":        price,
		"ma":           bands.Middle,
		"upper":        bands.Upper,
		"lower":        bands.Lower,
		"window":       p.Window,
		"k":            p.K,
		"outside_frac": outsideFrac,
	}

	switch signal {
	case model.SignalSell:
		reason := fmt.Sprintf("price %.2f above upper band %.2f", price, bands.Upper)
		return model.NewVote(t.Pillar(), t.Name(), signal, bandConfidence(outsideFrac), reason, data), nil
	case model.SignalBuy:
		reason := fmt.Sprintf("price %.2f below lower band %.2f", price, bands.Lower)
		return model.NewVote(t.Pillar(), t.Name(), signal, bandConfidence(outsideFrac), reason, data), nil
	default:
		reason := fmt.Sprintf("price %.2f inside bands [%.2f, %.2f]", price, bands.Lower, bands.Upper)
		return model.HoldVote(t.Pillar(), t.Name(), reason, data), nil
	}
}

func bandConfidence(outsideFrac float64) float64 {
	return math.Min(0.9, 0.5+0.4*outsideFrac)
}
