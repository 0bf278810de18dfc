package sentiment

import (
	"math"
	"time"

	"PillarVote/internal/model"
)

const zeroSumEpsilon = 1e-9

// ExpDecayWeight halves every halfLifeDays: 1 at age 0, 0.5 at age == halfLifeDays.
// A non-positive half-life disables decay.
func ExpDecayWeight(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1.0
	}
	lambda := math.Ln2 / halfLifeDays
	return math.Exp(-lambda * math.Max(0, ageDays))
}

// ScoreWeight gives popular items a logarithmic boost clamped to [minW, maxW].
func ScoreWeight(score int, minW, maxW float64) float64 {
	base := 1.0 + math.Log1p(math.Max(0, float64(score)))/3.0
	return math.Min(maxW, math.Max(minW, base))
}

// Clamp01 bounds x to [0,1]; NaN becomes 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(1, math.Max(0, x))
}

// WeightParams controls how each classified item is weighted.
type WeightParams struct {
	HalfLifeDays   float64
	MinScoreWeight float64
	MaxScoreWeight float64
}

// Counts tallies labels in a batch.
type Counts struct {
	Bull    int `json:"bull"`
	Bear    int `json:"bear"`
	Neutral int `json:"neu"`
}

// Result is the outcome of aggregating one batch.
type Result struct {
	Signal      model.Signal
	Confidence  float64
	WeightedSum float64
	Denominator float64
	Counts      Counts
	Items       []model.AuditedComment
}

// Aggregate combines classified items into a direction. Each item contributes its label
// sign times age weight times popularity weight; confidence reflects how dominant the
// majority is, capped at 0.9. Input order is kept in Items.
func Aggregate(items []model.ClassifiedComment, now time.Time, p WeightParams) Result {
	res := Result{Signal: model.SignalHold, Confidence: model.NeutralConfidence}
	res.Items = make([]model.AuditedComment, 0, len(items))

	for _, c := range items {
		sign := c.Label.Sign()
		ageDays := math.Max(0, now.Sub(c.CreatedAt).Hours()/24)
		w := ExpDecayWeight(ageDays, p.HalfLifeDays) * ScoreWeight(c.Score, p.MinScoreWeight, p.MaxScoreWeight)

		res.WeightedSum += float64(sign) * w
		res.Denominator += w
		switch {
		case sign > 0:
			res.Counts.Bull++
		case sign < 0:
			res.Counts.Bear++
		default:
			res.Counts.Neutral++
		}

		c.ModelConfidence = Clamp01(c.ModelConfidence)
		res.Items = append(res.Items, model.AuditedComment{
			ClassifiedComment: c,
			SentimentScore:    sign,
			Weight:            w,
		})
	}

	if math.Abs(res.WeightedSum) < zeroSumEpsilon || res.Denominator == 0 {
		return res
	}
	res.Signal = model.SignalFromSign(res.WeightedSum)
	res.Confidence = math.Min(0.9, 0.5+0.4*math.Abs(res.WeightedSum)/res.Denominator)
	return res
}
