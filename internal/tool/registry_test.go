package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PillarVote/internal/config"
	"PillarVote/internal/fundamentals"
	"PillarVote/internal/model"
	"PillarVote/internal/sentiment"
)

type emptySource struct{ name string }

func (s emptySource) Name() string { return s.name }
func (s emptySource) Fetch(context.Context, sentiment.Query) ([]model.CommentItem, error) {
	return nil, nil
}

func testDeps() Deps {
	return Deps{
		Ratios:     &fundamentals.StaticRatioProvider{Trailing: map[string]float64{"JPM": 12}},
		Reddit:     emptySource{name: "reddit"},
		Twitter:    emptySource{name: "twitter"},
		Classifier: sentiment.KeywordClassifier{},
	}
}

func TestDefault_BuildsAllToolsInOrder(t *testing.T) {
	cfg := config.Default()
	tools, err := Default().Build(cfg.Run.Tools, cfg, testDeps())
	require.NoError(t, err)
	require.Len(t, tools, len(config.AllTools))

	for i, tl := range tools {
		assert.Equal(t, config.AllTools[i], tl.Name())
	}
	assert.Equal(t, model.PillarFundamentals, tools[5].Pillar())
	assert.Equal(t, model.PillarSentiment, tools[6].Pillar())
}

func TestDefault_Names(t *testing.T) {
	assert.Equal(t, config.AllTools, Default().Names())
}

func TestBuild_Errors(t *testing.T) {
	cfg := config.Default()
	r := Default()

	tests := []struct {
		name  string
		names []string
		deps  Deps
	}{
		{"unknown tool", []string{"RSI", "MACD"}, testDeps()},
		{"duplicate tool", []string{"RSI", "rsi"}, testDeps()},
		{"missing ratio provider", []string{"PE_RATIO"}, Deps{}},
		{"missing comment source", []string{"REDDIT_SENTIMENT"}, Deps{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Build(tt.names, cfg, tt.deps)
			assert.Error(t, err)
		})
	}
}

func TestBuild_SentimentDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Sentiment.Enabled = false

	tools, err := Default().Build([]string{config.ToolRedditSentiment, config.ToolTwitterSentiment}, cfg, Deps{})
	require.NoError(t, err)
	require.Len(t, tools, 2)

	for _, tl := range tools {
		v, err := tl.Compute(context.Background(), model.ToolInput{Ticker: "JPM"})
		require.NoError(t, err)
		assert.Equal(t, model.SignalHold, v.Signal)
		assert.Equal(t, "disabled", v.Data["status"])
		assert.Equal(t, tl.Name(), v.Tool)
	}
}

func TestBuild_ToolsProduceConsistentVotes(t *testing.T) {
	cfg := config.Default()
	tools, err := Default().Build(cfg.Run.Tools, cfg, testDeps())
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.OHLCV, 260)
	for i := range bars {
		p := 100 + float64(i%17) - float64(i%5)
		bars[i] = model.OHLCV{Time: start.AddDate(0, 0, i), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1000 + float64(i%7)*10}
	}
	in := model.ToolInput{Ticker: "JPM", Series: model.NewPriceSeries("JPM", bars), AsOf: bars[len(bars)-1].Time}

	for _, tl := range tools {
		v, err := tl.Compute(context.Background(), in)
		require.NoError(t, err, tl.Name())
		assert.True(t, v.Consistent(), "%s: %+v", tl.Name(), v)
		assert.Equal(t, tl.Name(), v.Tool)
		assert.Equal(t, tl.Pillar(), v.Pillar)
	}
}

func TestRegister_Replaces(t *testing.T) {
	r := NewRegistry()
	r.Register("x", func(*config.Config, Deps) (Tool, error) { return sentiment.NewDisabled("A"), nil })
	r.Register("X", func(*config.Config, Deps) (Tool, error) { return sentiment.NewDisabled("B"), nil })

	assert.Equal(t, []string{"X"}, r.Names())
	tools, err := r.Build([]string{"x"}, config.Default(), Deps{})
	require.NoError(t, err)
	assert.Equal(t, "B", tools[0].Name())
}
