package technicals

import (
	"context"
	"fmt"

	"PillarVote/internal/calculator"
	"PillarVote/internal/model"
)

// PriceVolumeParams configures the divergence tool.
type PriceVolumeParams struct {
	Window      int
	VolRatioMin float64
}

// PriceVolume compares the last window of sessions against the window before it:
// a price move confirmed by rising volume votes in the direction of the move.
type PriceVolume struct {
	params PriceVolumeParams
}

// NewPriceVolume creates a price/volume tool.
func NewPriceVolume(p PriceVolumeParams) *PriceVolume { return &PriceVolume{params: p} }

func (t *PriceVolume) Name() string          { return "PRICE_VOLUME" }
func (t *PriceVolume) Pillar() model.Pillar { return model.PillarTechnicals }

func (t *PriceVolume) Compute(_ context.Context, in model.ToolInput) (model.Vote, error) {
	p := t.params
	if p.Window <= 0 {
		return model.Vote{}, fmt.Errorf("price/volume window must be positive, got %d", p.Window)
	}
	closes := in.Series.Closes()
	vols := in.Series.Volumes()
	n := len(closes)
	if n < 2*p.Window {
		return model.HoldVote(t.Pillar(), t.Name(), insufficientData, nil), nil
	}

	priceChange := 0.0
	if base := closes[n-1-p.Window]; base != 0 {
		priceChange = closes[n-1]/base - 1
	}
	recentVol := calculator.Mean(vols[n-p.Window:])
	priorVol := calculator.Mean(vols[n-2*p.Window : n-p.Window])
	volRatio := 0.0
	if priorVol != 0 {
		volRatio = recentVol / priorVol
	}
	risingVol := volRatio >= p.VolRatioMin

	data := map[string]any{
		"window":       p.Window,
		"price_change": priceChange,
		"vol_ratio":    volRatio,
	}
	switch {
	case risingVol && priceChange > 0:
		reason := fmt.Sprintf("price up %.2f%% on volume %.2fx", priceChange*100, volRatio)
		return model.NewVote(t.Pillar(), t.Name(), model.SignalBuy, 0.55, reason, data), nil
	case risingVol && priceChange < 0:
		reason := fmt.Sprintf("price down %.2f%% on volume %.2fx", -priceChange*100, volRatio)
		return model.NewVote(t.Pillar(), t.Name(), model.SignalSell, 0.55, reason, data), nil
	default:
		reason := fmt.Sprintf("price change %.2f%%, volume %.2fx", priceChange*100, volRatio)
		return model.HoldVote(t.Pillar(), t.Name(), reason, data), nil
	}
}
