package technicals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PillarVote/internal/calculator"
	"PillarVote/internal/model"
)

// TripleSMAParams configures the moving-average stack.
type TripleSMAParams struct {
	Fast, Mid, Slow int
	EqualIsBelow    bool
	SlopeWindow     int
	SlopeTol        float64
}

// TripleSMA votes on the ordering and direction of three simple moving averages.
// BUY needs fast > mid > slow with every slope >= tol, SELL the mirror; anything else is HOLD.
type TripleSMA struct {
	params TripleSMAParams
}

// NewTripleSMA creates a triple moving-average tool.
func NewTripleSMA(p TripleSMAParams) *TripleSMA { return &TripleSMA{params: p} }

func (t *TripleSMA) Name() string          { return "TRIPLE_SMA" }
func (t *TripleSMA) Pillar() model.Pillar { return model.PillarTechnicals }

type smaLine struct {
	window int
	series []float64
	value  float64
	slope  float64
}

// Compute evaluates the stack at the latest close.
func (t *TripleSMA) Compute(_ context.Context, in model.ToolInput) (model.Vote, error) {
	p := t.params
	if in.Series.Empty() {
		return model.HoldVote(t.Pillar(), t.Name(), "no price data", nil), nil
	}
	closes := in.Series.Closes()
	times := in.Series.Times()
	price := closes[len(closes)-1]

	windows := []int{p.Fast, p.Mid, p.Slow}
	lines := make([]smaLine, 0, len(windows))
	for _, w := range windows {
		series, err := calculator.SMASeries(closes, w)
		if errors.Is(err, calculator.ErrInsufficientData) {
			reason := fmt.Sprintf("%s: need %d closes for SMA%d, have %d", insufficientData, w, w, len(closes))
			return model.HoldVote(t.Pillar(), t.Name(), reason, map[string]any{
				"price":   price,
				"windows": windows,
			}), nil
		}
		if err != nil {
			return model.Vote{}, err
		}
		slope, err := smaSlope(series, p.SlopeWindow)
		if err != nil {
			return model.Vote{}, fmt.Errorf("sma%d slope: %w", w, err)
		}
		lines = append(lines, smaLine{window: w, series: series, value: series[len(series)-1], slope: slope})
	}

	values := map[string]any{}
	aboveBelow := map[string]any{}
	slopes := map[string]any{"window": p.SlopeWindow, "tol": p.SlopeTol}
	tails := map[string]any{}
	for _, l := range lines {
		key := fmt.Sprintf("%d", l.window)
		values[key] = l.value
		aboveBelow[key] = relation(price, l.value, p.EqualIsBelow)
		slopes[key] = l.slope
		tails[key] = tailPoints(l.series, times, 5)
	}
	data := map[string]any{
		"price":       price,
		"windows":     windows,
		"values":      values,
		"above_below": aboveBelow,
		"slopes":      slopes,
		"tails":       tails,
	}

	signal := stackSignal(
		[3]float64{lines[0].value, lines[1].value, lines[2].value},
		[3]float64{lines[0].slope, lines[1].slope, lines[2].slope},
		p.SlopeTol,
	)
	switch signal {
	case model.SignalBuy:
		reason := fmt.Sprintf("bullish stack SMA%d > SMA%d > SMA%d with non-negative slopes", p.Fast, p.Mid, p.Slow)
		return model.NewVote(t.Pillar(), t.Name(), model.SignalBuy, decisionConfidence, reason, data), nil
	case model.SignalSell:
		reason := fmt.Sprintf("bearish stack SMA%d < SMA%d < SMA%d with non-positive slopes", p.Fast, p.Mid, p.Slow)
		return model.NewVote(t.Pillar(), t.Name(), model.SignalSell, decisionConfidence, reason, data), nil
	default:
		return model.HoldVote(t.Pillar(), t.Name(), "mixed stack or conflicting slopes", data), nil
	}
}

// stackSignal requires every condition to hold; a single misordered average or
// conflicting slope yields HOLD.
func stackSignal(values, slopes [3]float64, tol float64) model.Signal {
	bullishStack := values[0] > values[1] && values[1] > values[2]
	bearishStack := values[0] < values[1] && values[1] < values[2]
	bullishSlopes, bearishSlopes := true, true
	for _, s := range slopes {
		bullishSlopes = bullishSlopes && s >= tol
		bearishSlopes = bearishSlopes && s <= -tol
	}
	switch {
	case bullishStack && bullishSlopes:
		return model.SignalBuy
	case bearishStack && bearishSlopes:
		return model.SignalSell
	default:
		return model.SignalHold
	}
}

// smaSlope is flat when the average has too few points for a meaningful regression.
func smaSlope(series []float64, window int) (float64, error) {
	if window < 2 {
		return 0, fmt.Errorf("slope window must be at least 2, got %d", window)
	}
	if len(series) < max(3, window) {
		return 0, nil
	}
	return calculator.Slope(series, window)
}

func relation(price, avg float64, equalIsBelow bool) string {
	switch {
	case price > avg:
		return "above"
	case price < avg:
		return "below"
	case equalIsBelow:
		return "below"
	default:
		return "above"
	}
}

// tailPoints pairs the last n SMA values with their bar dates. The SMA series is
// right-aligned with times.
func tailPoints(series []float64, times []time.Time, n int) []map[string]any {
	if n > len(series) {
		n = len(series)
	}
	offset := len(times) - len(series)
	out := make([]map[string]any, 0, n)
	for i := len(series) - n; i < len(series); i++ {
		out = append(out, map[string]any{
			"date":  times[offset+i].Format(time.DateOnly),
			"value": series[i],
		})
	}
	return out
}
