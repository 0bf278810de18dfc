package sentiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"PillarVote/internal/model"
)

// Params configures a sentiment tool.
type Params struct {
	Synonyms     []string
	MaxComments  int
	ClassifyTopN int
	MaxAgeDays   float64
	Weights      WeightParams
	// Extra is copied into the vote payload under params (subreddits, model name and so on).
	Extra map[string]any
}

// CommentSink stores the per-comment audit trail of a run.
type CommentSink interface {
	RecordComments(ctx context.Context, runID int64, ticker string, rows []model.AuditedComment) error
}

// Tool fetches comments from one Source, classifies the newest ClassifyTopN and
// aggregates them into a vote. REDDIT_SENTIMENT and TWITTER_SENTIMENT are both this type.
type Tool struct {
	name       string
	source     Source
	classifier Classifier
	sink       CommentSink
	params     Params
	now        func() time.Time
}

// NewTool creates a sentiment tool. sink may be nil.
func NewTool(name string, source Source, classifier Classifier, sink CommentSink, p Params) *Tool {
	return &Tool{
		name:       name,
		source:     source,
		classifier: classifier,
		sink:       sink,
		params:     p,
		now:        time.Now,
	}
}

func (t *Tool) Name() string          { return t.name }
func (t *Tool) Pillar() model.Pillar { return model.PillarSentiment }

func (t *Tool) Compute(ctx context.Context, in model.ToolInput) (model.Vote, error) {
	p := t.params
	now := t.now()
	logger := log.With().Str("tool", t.name).Str("ticker", in.Ticker).Logger()

	items, err := t.source.Fetch(ctx, Query{
		Ticker:   in.Ticker,
		Synonyms: p.Synonyms,
		Limit:    p.MaxComments,
		MaxAge:   time.Duration(p.MaxAgeDays * 24 * float64(time.Hour)),
		Now:      now,
	})
	var rl *RateLimitError
	switch {
	case errors.As(err, &rl):
		logger.Warn().Err(err).Int("remaining", rl.Remaining).Msg("sentiment source rate limited")
		data := map[string]any{
			"ticker":    in.Ticker,
			"status":    "rate_limited",
			"limit":     rl.Limit,
			"remaining": rl.Remaining,
		}
		if !rl.Reset.IsZero() {
			data["reset"] = rl.Reset.UTC().Format(time.RFC3339)
		}
		return model.HoldVote(t.Pillar(), t.name, fmt.Sprintf("%s %s", t.source.Name(), rl.Error()), data), nil
	case err != nil:
		return model.Vote{}, fmt.Errorf("%s fetch: %w", t.source.Name(), err)
	}

	if len(items) == 0 {
		return model.HoldVote(t.Pillar(), t.name, fmt.Sprintf("no mentions of %s on %s in the last %g days", in.Ticker, t.source.Name(), p.MaxAgeDays), map[string]any{
			"ticker":       in.Ticker,
			"status":       "no_mentions",
			"counts":       Counts{},
			"weighted_sum": 0.0,
		}), nil
	}

	if p.ClassifyTopN > 0 && len(items) > p.ClassifyTopN {
		items = items[:p.ClassifyTopN]
	}

	classified, classifyErr := t.classifier.Classify(ctx, in.Ticker, items)
	if classifyErr != nil {
		if ctx.Err() != nil {
			return model.Vote{}, ctx.Err()
		}
		logger.Warn().Err(classifyErr).Str("classifier", t.classifier.Name()).Msg("classification failed, treating batch as neutral")
		classified = Neutralise(items)
	} else {
		classified = align(items, classified)
	}

	res := Aggregate(classified, now, p.Weights)

	params := map[string]any{
		"source":           t.source.Name(),
		"classifier":       t.classifier.Name(),
		"max_comments":     p.MaxComments,
		"classify_top_n":   p.ClassifyTopN,
		"half_life_days":   p.Weights.HalfLifeDays,
		"min_score_weight": p.Weights.MinScoreWeight,
		"max_score_weight": p.Weights.MaxScoreWeight,
		"max_age_days":     p.MaxAgeDays,
	}
	for k, v := range p.Extra {
		params[k] = v
	}
	data := map[string]any{
		"ticker":       in.Ticker,
		"counts":       res.Counts,
		"weighted_sum": res.WeightedSum,
		"w_denom":      res.Denominator,
		"params":       params,
		"items":        itemPayload(res.Items),
	}
	if classifyErr != nil {
		data["classifier_error"] = truncate(classifyErr.Error(), 200)
	}

	reason := fmt.Sprintf("%s sentiment: bull=%d bear=%d neu=%d (weighted sum=%.2f)",
		t.source.Name(), res.Counts.Bull, res.Counts.Bear, res.Counts.Neutral, res.WeightedSum)
	if classifyErr != nil {
		reason = fmt.Sprintf("%s sentiment: classification failed (%s), %d items treated as Neutral",
			t.source.Name(), truncate(classifyErr.Error(), 200), len(items))
	}
	vote := model.NewVote(t.Pillar(), t.name, res.Signal, res.Confidence, reason, data)

	t.audit(ctx, in, res.Items)
	return vote, nil
}

// audit writes comment rows once the vote is final. Failures are logged only.
func (t *Tool) audit(ctx context.Context, in model.ToolInput, rows []model.AuditedComment) {
	if t.sink == nil || in.RunID == 0 || len(rows) == 0 {
		return
	}
	if err := t.sink.RecordComments(ctx, in.RunID, in.Ticker, rows); err != nil {
		log.Warn().Err(err).Str("tool", t.name).Int64("run_id", in.RunID).Msg("failed to record sentiment comments")
	}
}

// align re-joins classifier output to the fetched items by id. Unknown ids are dropped
// and missing ones become Neutral at 0.5.
func align(items []model.CommentItem, classified []model.ClassifiedComment) []model.ClassifiedComment {
	byID := make(map[string]model.ClassifiedComment, len(classified))
	for _, c := range classified {
		byID[c.ID] = c
	}
	out := make([]model.ClassifiedComment, len(items))
	for i, it := range items {
		c, ok := byID[it.ID]
		if !ok {
			out[i] = model.ClassifiedComment{CommentItem: it, Label: model.LabelNeutral, ModelConfidence: 0.5}
			continue
		}
		out[i] = model.ClassifiedComment{CommentItem: it, Label: c.Label, ModelConfidence: Clamp01(c.ModelConfidence)}
	}
	return out
}

func itemPayload(rows []model.AuditedComment) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any{
			"id":               r.ID,
			"source":           r.Source,
			"score":            r.Score,
			"created_utc":      r.CreatedAt.Unix(),
			"weight":           r.Weight,
			"sentiment":        string(r.Label),
			"sentiment_score":  r.SentimentScore,
			"confidence_model": r.ModelConfidence,
			"permalink":        r.Permalink,
			"preview":          truncate(r.Body, 240),
		}
	}
	return out
}

// Disabled stands in for a sentiment tool switched off by configuration, so every run
// still carries one vote per tool.
type Disabled struct {
	name string
}

// NewDisabled creates a placeholder for the named tool.
func NewDisabled(name string) *Disabled { return &Disabled{name: name} }

func (d *Disabled) Name() string          { return d.name }
func (d *Disabled) Pillar() model.Pillar { return model.PillarSentiment }

func (d *Disabled) Compute(_ context.Context, in model.ToolInput) (model.Vote, error) {
	return model.HoldVote(model.PillarSentiment, d.name, "sentiment disabled", map[string]any{
		"ticker": in.Ticker,
		"status": "disabled",
	}), nil
}
