package sentiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"PillarVote/internal/model"
)

// RedditSource reads the public comment listing of each subreddit.
type RedditSource struct {
	Client     *http.Client
	BaseURL    string
	UserAgent  string
	Subreddits []string
	limiter    *rate.Limiter
}

// NewRedditSource creates a Reddit source. Requests are paced to one per second.
func NewRedditSource(subreddits []string, userAgent string, client *http.Client) *RedditSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RedditSource{
		Client:     client,
		BaseURL:    "https://www.reddit.com",
		UserAgent:  userAgent,
		Subreddits: subreddits,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

func (s *RedditSource) Name() string { return "reddit" }

// Fetch scans every subreddit. A failing subreddit is logged and skipped; an error is
// returned only when every subreddit failed.
func (s *RedditSource) Fetch(ctx context.Context, q Query) ([]model.CommentItem, error) {
	pattern := TickerPattern(q.Ticker, q.Synonyms)

	var all []model.CommentItem
	var errs []error
	for _, sub := range s.Subreddits {
		items, err := s.fetchSubreddit(ctx, sub, q.Limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("subreddit", sub).Msg("reddit scan failed")
			errs = append(errs, fmt.Errorf("r/%s: %w", sub, err))
			continue
		}
		all = append(all, items...)
	}
	if len(s.Subreddits) > 0 && len(errs) == len(s.Subreddits) {
		return nil, errors.Join(errs...)
	}

	matched := collect(all, pattern, q)
	log.Debug().Str("ticker", q.Ticker).Int("scanned", len(all)).Int("matched", len(matched)).Msg("reddit scan done")
	return matched, nil
}

func (s *RedditSource) fetchSubreddit(ctx context.Context, sub string, limit int) ([]model.CommentItem, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	u := fmt.Sprintf("%s/r/%s/comments.json?limit=%d&raw_json=1",
		strings.TrimRight(s.BaseURL, "/"), url.PathEscape(sub), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reddit read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit: status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("reddit: invalid json")
	}

	var items []model.CommentItem
	gjson.GetBytes(body, "data.children.#.data").ForEach(func(_, c gjson.Result) bool {
		created := c.Get("created_utc").Float()
		it := model.CommentItem{
			ID:        c.Get("id").String(),
			Body:      c.Get("body").String(),
			Score:     int(c.Get("score").Int()),
			CreatedAt: time.Unix(int64(created), 0).UTC(),
			Source:    c.Get("subreddit").String(),
			Author:    c.Get("author").String(),
		}
		if it.Source == "" {
			it.Source = sub
		}
		if p := c.Get("permalink").String(); p != "" {
			it.Permalink = "https://www.reddit.com" + p
		}
		items = append(items, it)
		return true
	})
	return items, nil
}
