package technicals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"PillarVote/internal/calculator"
	"PillarVote/internal/model"
)

// HistSimParams configures the similarity search.
type HistSimParams struct {
	Window  int
	Horizon int
	TopK    int
}

// HistSim matches the most recent window of closes against every earlier window of the
// same length and votes on the mean forward return of the best-correlated matches.
type HistSim struct {
	params HistSimParams
}

// NewHistSim creates a historical similarity tool.
func NewHistSim(p HistSimParams) *HistSim { return &HistSim{params: p} }

func (t *HistSim) Name() string          { return "HIST_SIM" }
func (t *HistSim) Pillar() model.Pillar { return model.PillarTechnicals }

// Match is one historical window scored against the recent one.
type Match struct {
	Start     int
	AsOf      time.Time
	Corr      float64
	FwdReturn float64
}

func (t *HistSim) Compute(ctx context.Context, in model.ToolInput) (model.Vote, error) {
	p := t.params
	if p.Window < 2 || p.Horizon <= 0 || p.TopK <= 0 {
		return model.Vote{}, fmt.Errorf("invalid similarity params window=%d horizon=%d top_k=%d", p.Window, p.Horizon, p.TopK)
	}
	closes := in.Series.Closes()
	if len(closes) < p.Window+p.Horizon+5 {
		return model.HoldVote(t.Pillar(), t.Name(), "insufficient history", map[string]any{}), nil
	}

	matches, err := SimilarWindows(ctx, closes, in.Series.Times(), p.Window, p.Horizon)
	if err != nil {
		return model.Vote{}, err
	}
	if len(matches) == 0 {
		return model.HoldVote(t.Pillar(), t.Name(), "no comparable windows", map[string]any{}), nil
	}
	top := matches[:min(p.TopK, len(matches))]

	sum := 0.0
	for _, m := range top {
		sum += m.FwdReturn
	}
	meanRet := sum / float64(len(top))

	topData := make([]map[string]any, len(top))
	for i, m := range top {
		topData[i] = map[string]any{
			"asof":       m.AsOf.Format(time.DateOnly),
			"corr":       m.Corr,
			"fwd_return": m.FwdReturn,
		}
	}
	data := map[string]any{
		"window":              p.Window,
		"horizon":             p.Horizon,
		"top_k":               p.TopK,
		"mean_forward_return": meanRet,
		"top_matches":         topData,
	}

	reason := fmt.Sprintf("avg fwd %dd return among top-%d matches = %.2f%%", p.Horizon, len(top), meanRet*100)
	signal := model.SignalFromSign(meanRet)
	if signal == model.SignalHold {
		return model.HoldVote(t.Pillar(), t.Name(), reason, data), nil
	}
	return model.NewVote(t.Pillar(), t.Name(), signal, 0.55, reason, data), nil
}

// SimilarWindows scores every historical window closes[i:i+window], i in [0, n-window-horizon),
// against the most recent window. Results are ordered by correlation descending; equal
// correlations keep the earlier window first.
func SimilarWindows(ctx context.Context, closes []float64, times []time.Time, window, horizon int) ([]Match, error) {
	n := len(closes)
	if n < window {
		return nil, calculator.ErrInsufficientData
	}
	recent := calculator.ZNormalize(closes[n-window:])

	count := n - window - horizon
	if count <= 0 {
		return nil, nil
	}
	matches := make([]Match, 0, count)
	for i := 0; i < count; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hist := calculator.ZNormalize(closes[i : i+window])
		corr, err := calculator.Pearson(recent, hist)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		end := i + window - 1
		fwd := 0.0
		if closes[end] != 0 {
			fwd = closes[end+horizon]/closes[end] - 1
		}
		m := Match{Start: i, Corr: corr, FwdReturn: fwd}
		if end < len(times) {
			m.AsOf = times[end]
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(a, b int) bool { return matches[a].Corr > matches[b].Corr })
	return matches, nil
}
