package collector

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"PillarVote/internal/model"
	"PillarVote/internal/recorder"
	"PillarVote/internal/tool"
)

// ErrNoPriceData aborts a run when the price source returns no bars.
var ErrNoPriceData = errors.New("no price data")

const maxErrorLen = 200

// Collector runs every configured tool once per pass and records the result.
type Collector struct {
	Fetcher      Fetcher
	Recorder     recorder.Recorder
	Tools        []tool.Tool
	LookbackDays int
	Workers      int
}

// NewCollector creates a Collector with the default lookback of 250 sessions and four workers.
func NewCollector(fetcher Fetcher, rec recorder.Recorder, tools []tool.Tool) *Collector {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Collector{
		Fetcher:      fetcher,
		Recorder:     rec,
		Tools:        tools,
		LookbackDays: 250,
		Workers:      4,
	}
}

// Run performs one pass for ticker. Only a missing price history, a failed run insert or
// a cancelled context fail the pass; tool failures become HOLD votes.
// Votes come back in tool order regardless of completion order.
func (c *Collector) Run(ctx context.Context, ticker string) (*model.Run, error) {
	logger := log.With().Str("ticker", ticker).Logger()

	bars, err := c.Fetcher.FetchDailyBars(ctx, ticker, c.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("fetch daily bars from %s: %w", c.Fetcher.Name(), err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s from %s", ErrNoPriceData, ticker, c.Fetcher.Name())
	}

	series := model.NewPriceSeries(ticker, bars)
	if c.LookbackDays > 0 {
		series = series.Tail(c.LookbackDays)
	}
	last := series.Last()
	run := &model.Run{
		Key:       uuid.NewString(),
		Ticker:    ticker,
		AsOf:      last.Time,
		Close:     last.Close,
		CreatedAt: time.Now(),
	}

	id, err := c.Recorder.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	run.ID = id
	logger = logger.With().Int64("run_id", id).Logger()
	logger.Info().Int("bars", series.Len()).Float64("close", last.Close).Int("tools", len(c.Tools)).Msg("run started")

	in := model.ToolInput{Ticker: ticker, Series: series, AsOf: last.Time, RunID: id}
	votes := make([]model.Vote, len(c.Tools))

	var g errgroup.Group
	if c.Workers > 0 {
		g.SetLimit(c.Workers)
	}
	for i, t := range c.Tools {
		g.Go(func() error {
			votes[i] = computeVote(ctx, t, in)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s: %w", ticker, err)
	}
	run.Votes = votes

	if err := c.Recorder.RecordVotes(ctx, id, votes); err != nil {
		logger.Error().Err(err).Msg("failed to record votes")
	}

	buy, hold, sell := run.Tally()
	logger.Info().Int("buy", buy).Int("hold", hold).Int("sell", sell).Msg("run finished")
	return run, nil
}

// computeVote calls one tool, turning an error or a panic into a HOLD vote.
func computeVote(ctx context.Context, t tool.Tool, in model.ToolInput) (v model.Vote) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", t.Name()).Interface("panic", r).Msg("tool panicked")
			v = failedVote(t, fmt.Errorf("panic: %v", r))
		}
	}()

	v, err := t.Compute(ctx, in)
	if err != nil {
		log.Warn().Err(err).Str("tool", t.Name()).Str("ticker", in.Ticker).Msg("tool failed")
		return failedVote(t, err)
	}
	if v.Tool == "" {
		v.Tool = t.Name()
	}
	if v.Pillar == "" {
		v.Pillar = t.Pillar()
	}
	if !v.Consistent() {
		v = model.NewVote(v.Pillar, v.Tool, v.Signal, v.Confidence, v.Reason, v.Data)
	}
	log.Debug().Str("tool", t.Name()).Str("signal", string(v.Signal)).Dur("took", time.Since(start)).Msg("tool done")
	return v
}

func failedVote(t tool.Tool, err error) model.Vote {
	msg := truncate(err.Error(), maxErrorLen)
	return model.HoldVote(t.Pillar(), t.Name(), fmt.Sprintf("%s failed: %s", t.Name(), msg), map[string]any{
		"error": msg,
	})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
