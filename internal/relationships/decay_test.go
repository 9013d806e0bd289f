package relationships

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPredictHighEngagementRecommendsMaintainOrPromote(t *testing.T) {
	p := Predict(DecayInput{
		AccessCount: 20, DaysSinceCreation: 10, DaysSinceAccess: 1,
		RelationshipCount: 8, ValidationScore: 0.9, ContentRelevance: 0.9, TTL: 0,
	}, DefaultDecayConfig())

	assert.Greater(t, p.CurrentImportance, 0.5)
	assert.Contains(t, []Recommendation{RecommendMaintain, RecommendPromote}, p.Recommendation)
}

func TestPredictStaleItemRecommendsDeleteOrArchive(t *testing.T) {
	p := Predict(DecayInput{
		AccessCount: 0, DaysSinceCreation: 400, DaysSinceAccess: 300,
		RelationshipCount: 0, ValidationScore: 0, ContentRelevance: 0.05, TTL: 0,
	}, DefaultDecayConfig())

	assert.Less(t, p.CurrentImportance, 0.3)
	assert.Contains(t, []Recommendation{RecommendDelete, RecommendArchive}, p.Recommendation)
}

func TestPredictImportanceIsClampedTo1(t *testing.T) {
	p := Predict(DecayInput{
		AccessCount: 1000, DaysSinceCreation: 1, DaysSinceAccess: 0,
		RelationshipCount: 100, ValidationScore: 1, ContentRelevance: 1,
	}, DefaultDecayConfig())
	assert.LessOrEqual(t, p.CurrentImportance, 1.0)
}

func TestPredictShortTTLRecommendsDelete(t *testing.T) {
	p := Predict(DecayInput{
		AccessCount: 5, DaysSinceCreation: 5, DaysSinceAccess: 1,
		RelationshipCount: 2, ValidationScore: 0.5, ContentRelevance: 0.5,
		TTL: 3 * 24 * time.Hour,
	}, DefaultDecayConfig())
	assert.Equal(t, RecommendDelete, p.Recommendation)
}
