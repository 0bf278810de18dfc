package tool

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"PillarVote/internal/config"
	"PillarVote/internal/fundamentals"
	"PillarVote/internal/model"
	"PillarVote/internal/sentiment"
)

// Tool is one independent analysis producing a single Vote per pass.
// Compute must not mutate the input; a returned error is turned into a HOLD vote by the caller.
type Tool interface {
	Name() string
	Pillar() model.Pillar
	Compute(ctx context.Context, in model.ToolInput) (model.Vote, error)
}

// Deps are the external collaborators tools may need. Nil fields are filled by NewDeps.
type Deps struct {
	Ratios     fundamentals.RatioProvider
	Reddit     sentiment.Source
	Twitter    sentiment.Source
	Classifier sentiment.Classifier
	Sink       sentiment.CommentSink
}

// NewDeps builds the production collaborators from config. The Gemini classifier is used
// when an API key is configured, the keyword classifier otherwise.
func NewDeps(ctx context.Context, cfg *config.Config, sink sentiment.CommentSink) Deps {
	client := httpClient(cfg.Fetch.Proxy)
	s := cfg.Sentiment

	deps := Deps{
		Ratios:  fundamentals.NewYahooRatioProvider(cfg.Fetch.Proxy),
		Reddit:  sentiment.NewRedditSource(s.Subreddits, s.RedditAgent, client),
		Twitter: sentiment.NewTwitterSource(s.TwitterToken, client),
		Sink:    sink,
	}

	deps.Classifier = sentiment.KeywordClassifier{}
	if s.Enabled && s.GeminiAPIKey != "" {
		g, err := sentiment.NewGeminiClassifier(ctx, s.GeminiAPIKey, s.Model)
		if err != nil {
			log.Warn().Err(err).Msg("gemini classifier unavailable, using keyword classifier")
		} else {
			deps.Classifier = g
		}
	}
	return deps
}

func httpClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Timeout: 20 * time.Second, Transport: transport}
}
