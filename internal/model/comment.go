package model

import (
	"strings"
	"time"
)

// Label is a classifier verdict for one comment.
type Label string

const (
	LabelBullish Label = "Bullish"
	LabelBearish Label = "Bearish"
	LabelNeutral Label = "Neutral"
)

// ParseLabel normalises free-form classifier output. Anything unrecognised is Neutral.
func ParseLabel(s string) (Label, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish":
		return LabelBullish, true
	case "bearish":
		return LabelBearish, true
	case "neutral":
		return LabelNeutral, true
	default:
		return LabelNeutral, false
	}
}

// Sign maps Bullish to +1, Bearish to -1 and Neutral to 0.
func (l Label) Sign() int {
	switch l {
	case LabelBullish:
		return 1
	case LabelBearish:
		return -1
	default:
		return 0
	}
}

// CommentItem is one fetched social-media text mentioning the ticker.
type CommentItem struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
	Author    string    `json:"author,omitempty"`
	Permalink string    `json:"permalink,omitempty"`
}

// ClassifiedComment is a CommentItem with the classifier's label and confidence.
type ClassifiedComment struct {
	CommentItem
	Label           Label   `json:"label"`
	ModelConfidence float64 `json:"model_confidence"`
}

// AuditedComment is a classified comment with the weight it carried in aggregation.
type AuditedComment struct {
	ClassifiedComment
	SentimentScore int     `json:"sentiment_score"`
	Weight         float64 `json:"weight"`
}
