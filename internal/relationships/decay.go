package relationships

import (
	"math"
	"time"
)

// DecayConfig tunes the decay predictor (spec.md §4.5.5 defaults).
type DecayConfig struct {
	HalfLife  time.Duration // default 30 days
	Threshold float64       // default 0.1
}

// DefaultDecayConfig mirrors spec.md §4.5.5's documented defaults.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{HalfLife: 30 * 24 * time.Hour, Threshold: 0.1}
}

// DecayInput is the per-memory signal the predictor needs beyond what's on
// the MemoryItem itself (spec.md §4.5.5).
type DecayInput struct {
	AccessCount       int64
	DaysSinceCreation float64
	DaysSinceAccess   float64
	RelationshipCount int
	ValidationScore   float64 // [0,1]
	ContentRelevance  float64 // [0,1]
	TTL               time.Duration // 0 means no expiry set
}

// Predict computes importance, decay rate, and a lifecycle recommendation
// (spec.md §4.5.5).
func Predict(in DecayInput, cfg DecayConfig) DecayPrediction {
	accessFreq := math.Min(1, float64(in.AccessCount)/(in.DaysSinceCreation+1))
	recency := math.Exp(-in.DaysSinceAccess / 30)
	relStrength := math.Min(1, float64(in.RelationshipCount)/10)

	importance := 0.3*accessFreq + 0.2*recency + 0.2*relStrength + 0.15*in.ContentRelevance + 0.15*in.ValidationScore
	importance = math.Min(importance, 1)

	halfLifeDays := cfg.HalfLife.Hours() / 24
	decayRate := (math.Ln2 / halfLifeDays) * (1 - 0.8*(0.4*relStrength+0.3*in.ValidationScore+0.3*accessFreq))

	predicted := importance * math.Exp(-decayRate*30)

	var timeToObsolescence float64
	if importance > cfg.Threshold && decayRate > 0 {
		timeToObsolescence = math.Log(importance/cfg.Threshold) / decayRate
	}

	ttlDays := math.Inf(1)
	if in.TTL > 0 {
		ttlDays = in.TTL.Hours() / 24
	}

	recommendation := RecommendMaintain
	switch {
	case predicted > 1.2*importance:
		recommendation = RecommendPromote
	case ttlDays < 7 || importance < cfg.Threshold:
		recommendation = RecommendDelete
	case ttlDays < 30 && importance < 0.3:
		recommendation = RecommendArchive
	}

	return DecayPrediction{
		CurrentImportance:   importance,
		PredictedImportance: predicted,
		DecayRate:           decayRate,
		TimeToObsolescence:  timeToObsolescence,
		Confidence:          math.Min(1, 0.5+0.5*relStrength),
		Factors: map[string]float64{
			"access_frequency": accessFreq,
			"recency":          recency,
			"relationship_strength": relStrength,
			"content_relevance": in.ContentRelevance,
			"validation_score": in.ValidationScore,
		},
		Recommendation: recommendation,
	}
}
