package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PillarVote/internal/model"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

var weights = WeightParams{HalfLifeDays: 3, MinScoreWeight: 0.5, MaxScoreWeight: 2}

func TestExpDecayWeight(t *testing.T) {
	assert.Equal(t, 1.0, ExpDecayWeight(0, 3))
	assert.InDelta(t, 0.5, ExpDecayWeight(3, 3), 1e-12)
	assert.InDelta(t, 0.25, ExpDecayWeight(6, 3), 1e-12)
	assert.Equal(t, 1.0, ExpDecayWeight(-2, 3))
	for _, age := range []float64{0, 1, 100} {
		assert.Equal(t, 1.0, ExpDecayWeight(age, 0))
		assert.Equal(t, 1.0, ExpDecayWeight(age, -1))
	}
}

func TestScoreWeight(t *testing.T) {
	assert.Equal(t, 1.0, ScoreWeight(0, 0.5, 2))
	assert.Equal(t, 1.0, ScoreWeight(-50, 0.5, 2))
	assert.InDelta(t, 1+math.Log(11)/3, ScoreWeight(10, 0.5, 2), 1e-12)
	assert.Equal(t, 2.0, ScoreWeight(100000, 0.5, 2))
	assert.Equal(t, 1.5, ScoreWeight(0, 1.5, 2))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 1.0, Clamp01(3))
	assert.Equal(t, 0.0, Clamp01(-1))
	assert.Equal(t, 0.4, Clamp01(0.4))
}

func classified(id string, label model.Label, age time.Duration, score int) model.ClassifiedComment {
	return model.ClassifiedComment{
		CommentItem:     model.CommentItem{ID: id, Body: "x", Score: score, CreatedAt: now.Add(-age)},
		Label:           label,
		ModelConfidence: 0.8,
	}
}

func TestAggregate_Empty(t *testing.T) {
	res := Aggregate(nil, now, weights)
	assert.Equal(t, model.SignalHold, res.Signal)
	assert.Equal(t, 0.5, res.Confidence)
	assert.Zero(t, res.Denominator)
}

func TestAggregate_AllBullishApproachesCap(t *testing.T) {
	for _, n := range []int{1, 5, 50} {
		items := make([]model.ClassifiedComment, n)
		for i := range items {
			items[i] = classified(fmt.Sprintf("c%d", i), model.LabelBullish, time.Hour, 3)
		}
		res := Aggregate(items, now, weights)
		assert.Equal(t, model.SignalBuy, res.Signal)
		assert.InDelta(t, 0.9, res.Confidence, 1e-9)
		assert.Equal(t, n, res.Counts.Bull)
	}
}

func TestAggregate_Mixed(t *testing.T) {
	items := []model.ClassifiedComment{
		classified("a", model.LabelBullish, 0, 0),
		classified("b", model.LabelBearish, 0, 0),
		classified("c", model.LabelNeutral, 0, 0),
	}
	res := Aggregate(items, now, weights)
	assert.Equal(t, model.SignalHold, res.Signal)
	assert.Equal(t, 0.5, res.Confidence)
	assert.Equal(t, Counts{Bull: 1, Bear: 1, Neutral: 1}, res.Counts)
	assert.InDelta(t, 3.0, res.Denominator, 1e-12)

	// an older bearish item weighs less than a fresh bullish one
	items = []model.ClassifiedComment{
		classified("a", model.LabelBullish, 0, 0),
		classified("b", model.LabelBearish, 72*time.Hour, 0),
	}
	res = Aggregate(items, now, weights)
	assert.Equal(t, model.SignalBuy, res.Signal)
	assert.InDelta(t, 0.5, res.WeightedSum, 1e-9)
	assert.InDelta(t, 0.5+0.4*0.5/1.5, res.Confidence, 1e-9)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "a", res.Items[0].ID)
	assert.Equal(t, -1, res.Items[1].SentimentScore)
}

func TestTickerPattern(t *testing.T) {
	re := TickerPattern("jpm", []string{"Chase", " "})
	for _, s := range []string{"$JPM to the moon", "long jpm here", "Chase earnings", "JPM."} {
		assert.True(t, re.MatchString(s), s)
	}
	for _, s := range []string{"JPMX is different", "purchase", "nothing here"} {
		assert.False(t, re.MatchString(s), s)
	}
}

func TestParseClassification(t *testing.T) {
	items := []model.CommentItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	tests := []struct {
		name  string
		text  string
		want  []model.Label
		confs []float64
	}{
		{
			name:  "plain array",
			text:  `[{"id":"a","sentiment":"bullish","confidence":0.9},{"id":"b","sentiment":"Bearish","confidence":1.7}]`,
			want:  []model.Label{model.LabelBullish, model.LabelBearish, model.LabelNeutral},
			confs: []float64{0.9, 1, 0.5},
		},
		{
			name:  "fenced with prose",
			text:  "Here you go:\n```json\n[{\"id\":\"c\",\"sentiment\":\"BEARISH\"}]\n```\nthanks",
			want:  []model.Label{model.LabelNeutral, model.LabelNeutral, model.LabelBearish},
			confs: []float64{0.5, 0.5, 0.5},
		},
		{
			name:  "wrapped object",
			text:  `{"results":[{"id":"b","sentiment":"Bullish","confidence":0.6}]}`,
			want:  []model.Label{model.LabelNeutral, model.LabelBullish, model.LabelNeutral},
			confs: []float64{0.5, 0.6, 0.5},
		},
		{
			name:  "unknown label and id",
			text:  `[{"id":"a","sentiment":"Euphoric","confidence":0.9},{"id":"zzz","sentiment":"Bullish"}]`,
			want:  []model.Label{model.LabelNeutral, model.LabelNeutral, model.LabelNeutral},
			confs: []float64{0.5, 0.5, 0.5},
		},
		{
			name:  "non-numeric confidence",
			text:  `[{"id":"a","sentiment":"Bullish","confidence":"high"},{"id":"b","sentiment":"Bearish","confidence":null},{"id":"c","sentiment":"Bullish","confidence":0}]`,
			want:  []model.Label{model.LabelBullish, model.LabelBearish, model.LabelBullish},
			confs: []float64{0.5, 0.5, 0},
		},
		{
			name:  "garbage",
			text:  "I cannot help with that",
			want:  []model.Label{model.LabelNeutral, model.LabelNeutral, model.LabelNeutral},
			confs: []float64{0.5, 0.5, 0.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ParseClassification(tt.text, items)
			require.Len(t, out, len(items))
			for i := range items {
				assert.Equal(t, items[i].ID, out[i].ID)
				assert.Equal(t, tt.want[i], out[i].Label)
				assert.InDelta(t, tt.confs[i], out[i].ModelConfidence, 1e-12)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p, err := BuildPrompt("aapl", []model.CommentItem{{ID: "c1", Body: `he said "buy"`}})
	require.NoError(t, err)
	assert.Contains(t, p, "ticker AAPL")
	assert.Contains(t, p, `{"id":"c1","body":"he said \"buy\""}`)
}

func TestKeywordClassifier(t *testing.T) {
	items := []model.CommentItem{
		{ID: "1", Body: "Loading calls, this will rally"},
		{ID: "2", Body: "Overvalued, buying puts before the crash"},
		{ID: "3", Body: "Earnings are on Tuesday"},
	}
	out, err := KeywordClassifier{}.Classify(context.Background(), "X", items)
	require.NoError(t, err)
	assert.Equal(t, model.LabelBullish, out[0].Label)
	assert.Equal(t, model.LabelBearish, out[1].Label)
	assert.Equal(t, model.LabelNeutral, out[2].Label)
	assert.InDelta(t, 0.7, out[0].ModelConfidence, 1e-12)
}

const redditListing = `{"data":{"children":[
 {"data":{"id":"old","body":"$JPM old news","score":5,"created_utc":%d,"subreddit":"stocks","author":"a","permalink":"/r/stocks/old"}},
 {"data":{"id":"n1","body":"JPM breakout","score":12,"created_utc":%d,"subreddit":"stocks","author":"b","permalink":"/r/stocks/n1"}},
 {"data":{"id":"n2","body":"unrelated","score":1,"created_utc":%d,"subreddit":"stocks","author":"c","permalink":"/r/stocks/n2"}},
 {"data":{"id":"n3","body":"bought $jpm","score":0,"created_utc":%d,"subreddit":"stocks","author":"d","permalink":"/r/stocks/n3"}}
]}}`

func TestRedditSource(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.UserAgent())
		mu.Unlock()
		switch r.URL.Path {
		case "/r/stocks/comments.json", "/r/investing/comments.json":
			fmt.Fprintf(w, redditListing,
				now.Add(-10*24*time.Hour).Unix(), now.Add(-time.Hour).Unix(),
				now.Add(-time.Hour).Unix(), now.Add(-2*time.Hour).Unix())
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	src := NewRedditSource([]string{"stocks", "private", "investing"}, "test-agent/1.0", srv.Client())
	src.BaseURL = srv.URL
	src.limiter = nil

	items, err := src.Fetch(context.Background(), Query{Ticker: "JPM", Limit: 50, MaxAge: 7 * 24 * time.Hour, Now: now})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "n1", items[0].ID)
	assert.Equal(t, "n3", items[1].ID)
	assert.Equal(t, "https://www.reddit.com/r/stocks/n1", items[0].Permalink)
	assert.Equal(t, 12, items[0].Score)
	for _, a := range agents {
		assert.Equal(t, "test-agent/1.0", a)
	}

	allBad := NewRedditSource([]string{"private"}, "ua", srv.Client())
	allBad.BaseURL = srv.URL
	allBad.limiter = nil
	_, err = allBad.Fetch(context.Background(), Query{Ticker: "JPM", Now: now})
	require.Error(t, err)
}

func TestTwitterSource(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query().Get("query")
		mu.Lock()
		queries = append(queries, q)
		mu.Unlock()
		if strings.HasSuffix(q, "-is:reply") {
			fmt.Fprint(w, `{"meta":{"result_count":0}}`)
			return
		}
		fmt.Fprintf(w, `{"data":[{"id":"1","text":"$TSLA ripping","created_at":"%s","author_id":"u1","public_metrics":{"like_count":4,"retweet_count":2}}]}`,
			now.Add(-time.Hour).Format(time.RFC3339))
	}))
	defer srv.Close()

	src := NewTwitterSource("tok", srv.Client())
	src.BaseURL = srv.URL
	src.limiter = nil

	items, err := src.Fetch(context.Background(), Query{Ticker: "tsla", Limit: 5, MaxAge: 24 * time.Hour, Now: now})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 6, items[0].Score)
	assert.Equal(t, "twitter", items[0].Source)
	mu.Lock()
	assert.Len(t, queries, 2)
	mu.Unlock()
}

func TestTwitterSource_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", "1741608000")
		w.Header().Set("x-rate-limit-limit", "450")
		w.Header().Set("x-rate-limit-remaining", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"title":"Too Many Requests"}`)
	}))
	defer srv.Close()

	src := NewTwitterSource("tok", srv.Client())
	src.BaseURL = srv.URL
	src.limiter = nil

	_, err := src.Fetch(context.Background(), Query{Ticker: "TSLA", Now: now})
	require.ErrorIs(t, err, ErrRateLimited)
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 450, rl.Limit)
	assert.Equal(t, 0, rl.Remaining)
	assert.Equal(t, int64(1741608000), rl.Reset.Unix())

	tool := NewTool("TWITTER_SENTIMENT", src, KeywordClassifier{}, nil, Params{MaxAgeDays: 7})
	v, err := tool.Compute(context.Background(), model.ToolInput{Ticker: "TSLA"})
	require.NoError(t, err)
	assert.Equal(t, model.SignalHold, v.Signal)
	assert.Equal(t, "rate_limited", v.Data["status"])
}

type fakeSource struct {
	items []model.CommentItem
	err   error
}

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) Fetch(context.Context, Query) ([]model.CommentItem, error) {
	return f.items, f.err
}

type fakeClassifier struct {
	out []model.ClassifiedComment
	err error
	got int
}

func (f *fakeClassifier) Name() string { return "fake" }
func (f *fakeClassifier) Classify(_ context.Context, _ string, items []model.CommentItem) ([]model.ClassifiedComment, error) {
	f.got = len(items)
	return f.out, f.err
}

type recordingSink struct {
	runID int64
	rows  []model.AuditedComment
	err   error
}

func (s *recordingSink) RecordComments(_ context.Context, runID int64, _ string, rows []model.AuditedComment) error {
	s.runID = runID
	s.rows = rows
	return s.err
}

func params() Params {
	return Params{MaxComments: 50, ClassifyTopN: 2, MaxAgeDays: 7, Weights: weights, Extra: map[string]any{"subreddits": []string{"stocks"}}}
}

func TestTool_NoMentions(t *testing.T) {
	tool := NewTool("REDDIT_SENTIMENT", &fakeSource{}, &fakeClassifier{}, nil, params())
	v, err := tool.Compute(context.Background(), model.ToolInput{Ticker: "JPM"})
	require.NoError(t, err)
	assert.Equal(t, model.SignalHold, v.Signal)
	assert.Equal(t, 0.5, v.Confidence)
	assert.Contains(t, strings.ToLower(v.Reason), "no mentions")
	assert.Equal(t, "no_mentions", v.Data["status"])
}

func TestTool_ClassifiesTopNAndAudits(t *testing.T) {
	items := []model.CommentItem{
		{ID: "a", Body: "x", CreatedAt: now.Add(-time.Hour)},
		{ID: "b", Body: "y", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "c", Body: "z", CreatedAt: now.Add(-3 * time.Hour)},
	}
	cls := &fakeClassifier{out: []model.ClassifiedComment{
		// reordered and missing "a"
		{CommentItem: model.CommentItem{ID: "b"}, Label: model.LabelBullish, ModelConfidence: math.NaN()},
		{CommentItem: model.CommentItem{ID: "zzz"}, Label: model.LabelBearish, ModelConfidence: 0.9},
	}}
	sink := &recordingSink{err: errors.New("disk full")}
	tool := NewTool("REDDIT_SENTIMENT", &fakeSource{items: items}, cls, sink, params())
	tool.now = func() time.Time { return now }

	v, err := tool.Compute(context.Background(), model.ToolInput{Ticker: "JPM", RunID: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, cls.got)
	assert.Equal(t, model.SignalBuy, v.Signal)
	assert.True(t, v.Consistent())
	assert.Equal(t, Counts{Bull: 1, Neutral: 1}, v.Data["counts"])

	require.Len(t, sink.rows, 2)
	assert.Equal(t, int64(7), sink.runID)
	assert.Equal(t, "a", sink.rows[0].ID)
	assert.Equal(t, model.LabelNeutral, sink.rows[0].Label)
	assert.Equal(t, 0.5, sink.rows[0].ModelConfidence)
	assert.Equal(t, 0.0, sink.rows[1].ModelConfidence)
}

func TestTool_ClassifierFailureIsNeutral(t *testing.T) {
	items := []model.CommentItem{{ID: "a", CreatedAt: now}}
	tool := NewTool("REDDIT_SENTIMENT", &fakeSource{items: items}, &fakeClassifier{err: errors.New("quota")}, nil, params())
	v, err := tool.Compute(context.Background(), model.ToolInput{Ticker: "JPM"})
	require.NoError(t, err)
	assert.Equal(t, model.SignalHold, v.Signal)
	assert.Equal(t, "quota", v.Data["classifier_error"])
	assert.Contains(t, v.Reason, "classification failed (quota)")
	assert.Contains(t, v.Reason, "1 items treated as Neutral")

	// a genuinely neutral batch reads differently
	neutral := &fakeClassifier{out: []model.ClassifiedComment{{CommentItem: items[0], Label: model.LabelNeutral, ModelConfidence: 0.5}}}
	tool = NewTool("REDDIT_SENTIMENT", &fakeSource{items: items}, neutral, nil, params())
	computed, err := tool.Compute(context.Background(), model.ToolInput{Ticker: "JPM"})
	require.NoError(t, err)
	assert.Equal(t, model.SignalHold, computed.Signal)
	assert.NotEqual(t, v.Reason, computed.Reason)
	assert.NotContains(t, computed.Reason, "classification failed")
	assert.NotContains(t, computed.Data, "classifier_error")
}

func TestTool_SourceError(t *testing.T) {
	tool := NewTool("REDDIT_SENTIMENT", &fakeSource{err: errors.New("dns")}, &fakeClassifier{}, nil, params())
	_, err := tool.Compute(context.Background(), model.ToolInput{Ticker: "JPM"})
	require.Error(t, err)
}

func TestDisabled(t *testing.T) {
	v, err := NewDisabled("REDDIT_SENTIMENT").Compute(context.Background(), model.ToolInput{Ticker: "JPM"})
	require.NoError(t, err)
	assert.Equal(t, model.SignalHold, v.Signal)
	assert.Equal(t, model.PillarSentiment, v.Pillar)
	assert.Equal(t, "disabled", v.Data["status"])
}
