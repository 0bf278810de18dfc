package sentiment

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"PillarVote/internal/model"
)

// Query describes which comments a Source should return.
type Query struct {
	Ticker   string
	Synonyms []string
	Limit    int // per subreddit or per search page
	MaxAge   time.Duration
	Now      time.Time
}

// Source fetches recent comments mentioning a ticker, newest first and deduplicated by id.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]model.CommentItem, error)
}

// TickerPattern matches $TICKER, the bare symbol as a word, or any synonym, case-insensitively.
func TickerPattern(ticker string, synonyms []string) *regexp.Regexp {
	t := regexp.QuoteMeta(strings.ToUpper(ticker))
	parts := []string{`\$` + t + `\b`, `\b` + t + `\b`}
	for _, s := range synonyms {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		parts = append(parts, `\b`+regexp.QuoteMeta(s)+`\b`)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(parts, "|"))
}

// collect keeps matching items inside the age window, dedups by id (last one wins)
// and sorts newest first with id as a tiebreak.
func collect(items []model.CommentItem, pattern *regexp.Regexp, q Query) []model.CommentItem {
	cutoff := q.Now.Add(-q.MaxAge)
	byID := make(map[string]model.CommentItem, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if q.MaxAge > 0 && it.CreatedAt.Before(cutoff) {
			continue
		}
		if pattern != nil && !pattern.MatchString(it.Body) {
			continue
		}
		byID[it.ID] = it
	}

	out := make([]model.CommentItem, 0, len(byID))
	for _, it := range byID {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
