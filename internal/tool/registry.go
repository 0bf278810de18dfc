package tool

import (
	"fmt"
	"strings"

	"PillarVote/internal/config"
	"PillarVote/internal/fundamentals"
	"PillarVote/internal/sentiment"
	"PillarVote/internal/technicals"
)

// Constructor builds a tool from configuration and collaborators.
type Constructor func(cfg *config.Config, deps Deps) (Tool, error)

// Registry maps tool names to constructors, keeping registration order.
type Registry struct {
	ctors map[string]Constructor
	order []string
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, c Constructor) {
	name = strings.ToUpper(name)
	if _, ok := r.ctors[name]; !ok {
		r.order = append(r.order, name)
	}
	r.ctors[name] = c
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Build constructs the named tools in the given order. Unknown or repeated names are errors.
func (r *Registry) Build(names []string, cfg *config.Config, deps Deps) ([]Tool, error) {
	seen := make(map[string]bool, len(names))
	tools := make([]Tool, 0, len(names))
	for _, raw := range names {
		name := strings.ToUpper(strings.TrimSpace(raw))
		ctor, ok := r.ctors[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", raw)
		}
		if seen[name] {
			return nil, fmt.Errorf("tool %q listed twice", name)
		}
		seen[name] = true

		t, err := ctor(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// Default returns a registry holding every built-in tool.
func Default() *Registry {
	r := NewRegistry()

	r.Register(config.ToolRSI, func(cfg *config.Config, _ Deps) (Tool, error) {
		return technicals.NewRSI(technicals.RSIParams{
			Period:     cfg.RSI.Period,
			Oversold:   cfg.RSI.Oversold,
			Overbought: cfg.RSI.Overbought,
		}), nil
	})
	r.Register(config.ToolTripleSMA, func(cfg *config.Config, _ Deps) (Tool, error) {
		return technicals.NewTripleSMA(technicals.TripleSMAParams{
			Fast:         cfg.SMA.Short,
			Mid:          cfg.SMA.Mid,
			Slow:         cfg.SMA.Long,
			EqualIsBelow: cfg.SMA.EqualIsBelow,
			SlopeWindow:  cfg.SMA.SlopeWindow,
			SlopeTol:     cfg.SMA.SlopeTol,
		}), nil
	})
	r.Register(config.ToolBollinger, func(cfg *config.Config, _ Deps) (Tool, error) {
		return technicals.NewBollinger(technicals.BollingerParams{
			Window:        cfg.Bollinger.Window,
			K:             cfg.Bollinger.K,
			EqualIsInside: cfg.Bollinger.EqualIsInside,
		}), nil
	})
	r.Register(config.ToolPriceVolume, func(cfg *config.Config, _ Deps) (Tool, error) {
		return technicals.NewPriceVolume(technicals.PriceVolumeParams{
			Window:      cfg.PriceVolume.Window,
			VolRatioMin: cfg.PriceVolume.VolRatioMin,
		}), nil
	})
	r.Register(config.ToolHistSim, func(cfg *config.Config, _ Deps) (Tool, error) {
		return technicals.NewHistSim(technicals.HistSimParams{
			Window:  cfg.HistSim.Window,
			Horizon: cfg.HistSim.Horizon,
			TopK:    cfg.HistSim.TopK,
		}), nil
	})
	r.Register(config.ToolPERatio, func(cfg *config.Config, deps Deps) (Tool, error) {
		if deps.Ratios == nil {
			return nil, fmt.Errorf("no ratio provider")
		}
		return fundamentals.NewPERatio(fundamentals.PEParams{
			BuyBelow:     cfg.PERatio.BuyBelow,
			HoldUpper:    cfg.PERatio.HoldUpper,
			AllowForward: cfg.PERatio.AllowForward,
		}, deps.Ratios), nil
	})
	r.Register(config.ToolRedditSentiment, func(cfg *config.Config, deps Deps) (Tool, error) {
		extra := map[string]any{"subreddits": cfg.Sentiment.Subreddits}
		return sentimentTool(config.ToolRedditSentiment, deps.Reddit, cfg, deps, extra)
	})
	r.Register(config.ToolTwitterSentiment, func(cfg *config.Config, deps Deps) (Tool, error) {
		return sentimentTool(config.ToolTwitterSentiment, deps.Twitter, cfg, deps, nil)
	})

	return r
}

func sentimentTool(name string, src sentiment.Source, cfg *config.Config, deps Deps, extra map[string]any) (Tool, error) {
	s := cfg.Sentiment
	if !s.Enabled {
		return sentiment.NewDisabled(name), nil
	}
	if src == nil {
		return nil, fmt.Errorf("no comment source")
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = sentiment.KeywordClassifier{}
	}
	return sentiment.NewTool(name, src, classifier, deps.Sink, sentiment.Params{
		Synonyms:     s.Synonyms,
		MaxComments:  s.MaxComments,
		ClassifyTopN: s.ClassifyTopN,
		MaxAgeDays:   s.MaxAgeDays,
		Weights: sentiment.WeightParams{
			HalfLifeDays:   s.HalfLifeDays,
			MinScoreWeight: s.MinScoreWeight,
			MaxScoreWeight: s.MaxScoreWeight,
		},
		Extra: extra,
	}), nil
}
