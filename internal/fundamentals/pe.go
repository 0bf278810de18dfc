package fundamentals

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"PillarVote/internal/model"
)

// PEParams holds the P/E thresholds.
type PEParams struct {
	BuyBelow     float64
	HoldUpper    float64
	AllowForward bool
}

// PERatio votes BUY below BuyBelow, SELL above HoldUpper and HOLD in between.
type PERatio struct {
	params   PEParams
	provider RatioProvider
}

// NewPERatio creates the P/E tool backed by provider.
func NewPERatio(p PEParams, provider RatioProvider) *PERatio {
	return &PERatio{params: p, provider: provider}
}

func (t *PERatio) Name() string          { return "PE_RATIO" }
func (t *PERatio) Pillar() model.Pillar { return model.PillarFundamentals }

func (t *PERatio) Compute(ctx context.Context, in model.ToolInput) (model.Vote, error) {
	p := t.params
	thresholds := map[string]any{"buy_below": p.BuyBelow, "hold_upper": p.HoldUpper}

	ratio, err := t.provider.PERatio(ctx, in.Ticker, p.AllowForward)
	if err != nil {
		if ctx.Err() != nil {
			return model.Vote{}, ctx.Err()
		}
		data := map[string]any{
			"ticker":     in.Ticker,
			"pe":         nil,
			"source":     "unavailable",
			"thresholds": thresholds,
		}
		// anything beyond a plain miss is logged and kept in the payload
		if !errors.Is(err, ErrUnavailable) {
			log.Warn().Err(err).Str("ticker", in.Ticker).Str("provider", t.provider.Name()).Msg("P/E lookup failed")
			data["error"] = err.Error()
		}
		reason := fmt.Sprintf("P/E unavailable from %s", t.provider.Name())
		return model.HoldVote(t.Pillar(), t.Name(), reason, data), nil
	}

	pe := ratio.Value
	signal := model.SignalHold
	switch {
	case pe < p.BuyBelow:
		signal = model.SignalBuy
	case pe > p.HoldUpper:
		signal = model.SignalSell
	}

	reason := fmt.Sprintf("P/E=%.2f via %s; thresholds: <%g BUY, %g-%g HOLD, >%g SELL",
		pe, ratio.Source, p.BuyBelow, p.BuyBelow, p.HoldUpper, p.HoldUpper)
	data := map[string]any{
		"ticker":     in.Ticker,
		"pe":         pe,
		"source":     ratio.Source,
		"thresholds": thresholds,
	}
	if signal == model.SignalHold {
		return model.HoldVote(t.Pillar(), t.Name(), reason, data), nil
	}
	return model.NewVote(t.Pillar(), t.Name(), signal, ratioConfidence(pe, p.BuyBelow, p.HoldUpper), reason, data), nil
}

// ratioConfidence grows with the distance to the nearer threshold, normalised by half the gap.
func ratioConfidence(pe, buyBelow, holdUpper float64) float64 {
	nearest := math.Min(math.Abs(pe-buyBelow), math.Abs(pe-holdUpper))
	scale := math.Max(1, (holdUpper-buyBelow)/2)
	return math.Min(0.9, 0.5+math.Min(0.4, nearest/scale*0.4))
}
