package retrieval

import (
	"math"
	"time"

	"engram/internal/intent"
)

// defaultTauDays is the recency half-life-like decay constant when none is
// configured.
const defaultTauDays = 14.0

// Score computes:
//
//	score = s_semantic + w_recency·s_recency + w_access·log(1+access)
//	        + s_importance + intent_boost − s_negative
//
// where s_recency = exp(−age_days/τ).
func Score(c *Candidate, w Weights, now time.Time, parsed intent.Intent, negativeHits int) float64 {
	tau := w.RecencyTauDays
	if tau <= 0 {
		tau = defaultTauDays
	}
	ageDays := now.Sub(c.Item.Created).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := math.Exp(-ageDays / tau)
	c.RecencyScore = recency

	accessTerm := 0.0
	if w.BoostAccessCount {
		accessTerm = math.Log(1 + float64(c.AccessCount))
	}

	importance := importanceScore(c.Item.Confidence, string(c.Item.Category))

	intentBoost := 0.0
	if parsed.Matches(c.Item.Tags, string(c.Item.Category)) {
		intentBoost = w.IntentRoutingBoost
	}

	negCap := w.NegativeExamplesPenaltyCap
	if negCap <= 0 {
		negCap = 1.0
	}
	hits := negativeHits
	if hits > 10 {
		hits = 10
	}
	negative := math.Min(negCap, float64(hits)*w.NegativeExamplesPenaltyPerHit)

	score := c.SemanticScore +
		w.RecencyWeight*recency +
		w.BoostAccessWeight()*accessTerm +
		importance +
		intentBoost -
		negative

	c.Explanation = map[string]float64{
		"semantic":    c.SemanticScore,
		"recency":     w.RecencyWeight * recency,
		"access":      w.BoostAccessWeight() * accessTerm,
		"importance":  importance,
		"intentBoost": intentBoost,
		"negative":    negative,
	}
	c.Score = score
	return score
}

// BoostAccessWeight returns 1.0 when access-count boosting is enabled
// (the weight itself is folded into log(1+access) by convention) or 0.
func (w Weights) BoostAccessWeight() float64 {
	if w.BoostAccessCount {
		return 1.0
	}
	return 0.0
}

func importanceScore(confidence float64, category string) float64 {
	boost := map[string]float64{
		"correction": 0.15,
		"decision":   0.10,
		"commitment": 0.10,
		"principle":  0.05,
	}[category]
	return confidence*0.3 + boost
}
