package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/genai"

	"PillarVote/internal/model"
)

// Classifier labels comments for a ticker. Output has one entry per input item, in input order.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, ticker string, items []model.CommentItem) ([]model.ClassifiedComment, error)
}

const promptTemplate = `You are a precise financial sentiment tagger.

TASK:
For each comment, return sentiment for the specific ticker %[1]s as one of the ENUM values:
"Bullish", "Bearish", or "Neutral".
If the comment mentions many tickers or is off-topic for %[1]s, choose "Neutral".
Output MUST be valid JSON: a list of objects with keys:
- "id": the provided id
- "sentiment": one of "Bullish" | "Bearish" | "Neutral"
- "confidence": a float in [0,1]

EXAMPLE OUTPUT:
[{"id": "c1", "sentiment": "Bullish", "confidence": 0.8}, {"id": "c2", "sentiment": "Bearish", "confidence": 0.7}]

Now classify these comments. Respond with ONLY the JSON array (no prose):
%[2]s`

// BuildPrompt renders the classification prompt for a batch.
func BuildPrompt(ticker string, items []model.CommentItem) (string, error) {
	type promptItem struct {
		ID   string `json:"id"`
		Body string `json:"body"`
	}
	payload := make([]promptItem, len(items))
	for i, it := range items {
		payload[i] = promptItem{ID: it.ID, Body: it.Body}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode prompt items: %w", err)
	}
	return fmt.Sprintf(promptTemplate, strings.ToUpper(ticker), raw), nil
}

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// extractJSONArray pulls the classification array out of model output that may be fenced,
// wrapped in prose or nested under a results key.
func extractJSONArray(text string) (gjson.Result, bool) {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if !gjson.Valid(text) {
		start, end := strings.Index(text, "["), strings.LastIndex(text, "]")
		if start < 0 || end <= start {
			return gjson.Result{}, false
		}
		text = text[start : end+1]
		if !gjson.Valid(text) {
			return gjson.Result{}, false
		}
	}
	parsed := gjson.Parse(text)
	if parsed.IsArray() {
		return parsed, true
	}
	for _, key := range []string{"results", "items", "comments"} {
		if arr := parsed.Get(key); arr.IsArray() {
			return arr, true
		}
	}
	return gjson.Result{}, false
}

// ParseClassification joins model output back onto the input items by id. Missing ids,
// unknown labels and unparsable output all fall back to Neutral with confidence 0.5.
func ParseClassification(text string, items []model.CommentItem) []model.ClassifiedComment {
	type verdict struct {
		label model.Label
		conf  float64
	}
	byID := map[string]verdict{}
	if arr, ok := extractJSONArray(text); ok {
		arr.ForEach(func(_, row gjson.Result) bool {
			id := row.Get("id").String()
			label, known := model.ParseLabel(row.Get("sentiment").String())
			if id == "" || !known {
				return true
			}
			conf := 0.5
			if c := row.Get("confidence"); c.Type == gjson.Number {
				conf = c.Float()
			}
			byID[id] = verdict{label: label, conf: Clamp01(conf)}
			return true
		})
	}

	out := make([]model.ClassifiedComment, len(items))
	for i, it := range items {
		v, ok := byID[it.ID]
		if !ok {
			v = verdict{label: model.LabelNeutral, conf: 0.5}
		}
		out[i] = model.ClassifiedComment{CommentItem: it, Label: v.label, ModelConfidence: v.conf}
	}
	return out
}

// Neutralise labels every item Neutral at confidence 0.5.
func Neutralise(items []model.CommentItem) []model.ClassifiedComment {
	return ParseClassification("", items)
}

// GeminiClassifier classifies a batch with a single Gemini call.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates a classifier using the Gemini API key backend.
func NewGeminiClassifier(ctx context.Context, apiKey, modelName string) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClassifier{client: client, model: modelName}, nil
}

func (g *GeminiClassifier) Name() string { return "gemini:" + g.model }

func (g *GeminiClassifier) Classify(ctx context.Context, ticker string, items []model.CommentItem) ([]model.ClassifiedComment, error) {
	if len(items) == 0 {
		return nil, nil
	}
	prompt, err := BuildPrompt(ticker, items)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API request failed: %w", err)
	}
	return ParseClassification(resp.Text(), items), nil
}

var wordPattern = regexp.MustCompile(`[a-z]+`)

var (
	bullishWords = map[string]bool{
		"buy": true, "buying": true, "bull": true, "bullish": true, "calls": true, "long": true,
		"moon": true, "rocket": true, "undervalued": true, "beat": true, "beats": true,
		"rally": true, "breakout": true, "upgrade": true, "upgraded": true, "strong": true,
	}
	bearishWords = map[string]bool{
		"sell": true, "selling": true, "bear": true, "bearish": true, "puts": true, "short": true,
		"overvalued": true, "miss": true, "missed": true, "crash": true, "dump": true,
		"downgrade": true, "downgraded": true, "weak": true, "bagholder": true, "bagholding": true,
	}
)

// KeywordClassifier is an offline lexicon classifier used when no LLM key is configured.
type KeywordClassifier struct{}

func (KeywordClassifier) Name() string { return "keyword" }

func (KeywordClassifier) Classify(_ context.Context, _ string, items []model.CommentItem) ([]model.ClassifiedComment, error) {
	out := make([]model.ClassifiedComment, len(items))
	for i, it := range items {
		bull, bear := 0, 0
		for _, w := range wordPattern.FindAllString(strings.ToLower(it.Body), -1) {
			switch {
			case bullishWords[w]:
				bull++
			case bearishWords[w]:
				bear++
			}
		}
		label := model.LabelNeutral
		diff := bull - bear
		switch {
		case diff > 0:
			label = model.LabelBullish
		case diff < 0:
			label = model.LabelBearish
			diff = -diff
		}
		conf := 0.5
		if label != model.LabelNeutral {
			conf = min(0.9, 0.5+0.1*float64(diff))
		}
		out[i] = model.ClassifiedComment{CommentItem: it, Label: label, ModelConfidence: conf}
	}
	return out, nil
}
