package sentiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"PillarVote/internal/model"
)

// ErrRateLimited marks a source that refused the request for quota reasons.
var ErrRateLimited = errors.New("rate limited")

// RateLimitError carries the quota headers of a 429 response.
type RateLimitError struct {
	Reset     time.Time
	Limit     int
	Remaining int
	Body      string
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return "rate limited (429)"
	}
	return fmt.Sprintf("rate limited (429) until %s", e.Reset.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// TwitterSource queries the v2 recent-search endpoint with a bearer token.
type TwitterSource struct {
	Client      *http.Client
	BaseURL     string
	BearerToken string
	UserAgent   string
	limiter     *rate.Limiter
}

// NewTwitterSource creates a Twitter source. Search calls are paced to one every two seconds.
func NewTwitterSource(bearerToken string, client *http.Client) *TwitterSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &TwitterSource{
		Client:      client,
		BaseURL:     "https://api.twitter.com/2",
		BearerToken: bearerToken,
		UserAgent:   "pillarvote/0.1",
		limiter:     rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

func (s *TwitterSource) Name() string { return "twitter" }

// SearchQueries lists queries from strictest to loosest; the first one that returns tweets wins.
func SearchQueries(ticker string) []string {
	t := strings.ToUpper(ticker)
	return []string{
		fmt.Sprintf("(cashtags:%s OR $%s OR %s) lang:en -is:retweet -is:reply", t, t, t),
		fmt.Sprintf("(cashtags:%s OR $%s OR %s) lang:en -is:retweet", t, t, t),
		fmt.Sprintf("%s lang:en -is:retweet", t),
	}
}

func (s *TwitterSource) Fetch(ctx context.Context, q Query) ([]model.CommentItem, error) {
	if s.BearerToken == "" {
		return nil, errors.New("twitter bearer token not set")
	}
	limit := q.Limit
	if limit < 10 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	for _, query := range SearchQueries(q.Ticker) {
		items, err := s.search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		// the search already filters by symbol, so no pattern is applied
		matched := collect(items, nil, q)
		log.Debug().Str("ticker", q.Ticker).Str("query", query).Int("matched", len(matched)).Msg("twitter search done")
		if len(matched) > 0 {
			return matched, nil
		}
	}
	return nil, nil
}

func (s *TwitterSource) search(ctx context.Context, query string, limit int) ([]model.CommentItem, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(limit))
	params.Set("tweet.fields", "created_at,lang,public_metrics,author_id")
	u := strings.TrimRight(s.BaseURL, "/") + "/tweets/search/recent?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.BearerToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("twitter read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, rateLimitFromHeaders(resp.Header, body)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitter search: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("twitter search: invalid json")
	}

	var items []model.CommentItem
	gjson.GetBytes(body, "data").ForEach(func(_, tw gjson.Result) bool {
		created, _ := time.Parse(time.RFC3339, tw.Get("created_at").String())
		pm := tw.Get("public_metrics")
		id := tw.Get("id").String()
		items = append(items, model.CommentItem{
			ID:        id,
			Body:      tw.Get("text").String(),
			Score:     int(pm.Get("like_count").Int() + pm.Get("retweet_count").Int()),
			CreatedAt: created.UTC(),
			Source:    "twitter",
			Author:    tw.Get("author_id").String(),
			Permalink: "https://twitter.com/i/web/status/" + id,
		})
		return true
	})
	return items, nil
}

func rateLimitFromHeaders(h http.Header, body []byte) *RateLimitError {
	e := &RateLimitError{Limit: -1, Remaining: -1, Body: truncate(string(body), 500)}
	if v, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64); err == nil {
		e.Reset = time.Unix(v, 0)
	}
	if v, err := strconv.Atoi(h.Get("x-rate-limit-limit")); err == nil {
		e.Limit = v
	}
	if v, err := strconv.Atoi(h.Get("x-rate-limit-remaining")); err == nil {
		e.Remaining = v
	}
	return e
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
