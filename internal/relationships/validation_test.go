package relationships

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordlesssteve/layered-memory/internal/clock"
)

func TestConfirmMovesToHistoryAndRaisesPreferences(t *testing.T) {
	mc := clock.NewManual(time.Now())
	q := NewValidationQueue(mc, 0)

	rel := Relationship{ID: "r1", Type: TypeCausal, Algorithm: "causal_detector_v1", Confidence: 0.8}
	s := q.Enqueue(rel, "source text", "target text")

	confirmed, err := q.Confirm(s.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.ValidatedAt)

	assert.Empty(t, q.GetSmartSuggestions("user-1"))
	assert.InDelta(t, 0.05, q.prefs["user-1"].AlgorithmTrust["causal_detector_v1"], 1e-9)
}

func TestRejectLowersPreferences(t *testing.T) {
	mc := clock.NewManual(time.Now())
	q := NewValidationQueue(mc, 0)

	rel := Relationship{ID: "r1", Type: TypeCausal, Algorithm: "causal_detector_v1", Confidence: 0.8}
	s := q.Enqueue(rel, "a", "b")

	_, err := q.Reject(s.ID, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, q.prefs["user-1"].AlgorithmTrust["causal_detector_v1"], 1e-9, "clamp01 floors trust at 0")
}

func TestModifyOverridesTypeAndConfidence(t *testing.T) {
	mc := clock.NewManual(time.Now())
	q := NewValidationQueue(mc, 0)
	rel := Relationship{ID: "r1", Type: TypeCausal, Algorithm: "a", Confidence: 0.6}
	s := q.Enqueue(rel, "a", "b")

	newType := TypeConfirmation
	newConf := 0.95
	modified, err := q.Modify(s.ID, "user-1", &newType, &newConf)
	require.NoError(t, err)
	assert.Equal(t, StatusModified, modified.Status)
	assert.Equal(t, &newType, modified.ModifiedType)
}

func TestBatchValidateAppliesActionToEach(t *testing.T) {
	mc := clock.NewManual(time.Now())
	q := NewValidationQueue(mc, 0)
	s1 := q.Enqueue(Relationship{ID: "r1", Algorithm: "a", Confidence: 0.7}, "", "")
	s2 := q.Enqueue(Relationship{ID: "r2", Algorithm: "a", Confidence: 0.7}, "", "")

	resolved, errs := q.BatchValidate([]string{s1.ID, s2.ID}, "user-1", "confirm")
	assert.Empty(t, errs)
	assert.Len(t, resolved, 2)
}

func TestGetSmartSuggestionsFiltersByConfidenceThreshold(t *testing.T) {
	mc := clock.NewManual(time.Now())
	q := NewValidationQueue(mc, 0)
	q.Enqueue(Relationship{ID: "low", Algorithm: "a", Confidence: 0.1}, "", "")
	q.Enqueue(Relationship{ID: "high", Algorithm: "a", Confidence: 0.9}, "", "")

	suggestions := q.GetSmartSuggestions("new-user")
	require.Len(t, suggestions, 1)
	assert.Equal(t, "sugg-high", suggestions[0].ID)
}

func TestCleanupRemovesOldHistory(t *testing.T) {
	mc := clock.NewManual(time.Now())
	q := NewValidationQueue(mc, 24*time.Hour)

	s := q.Enqueue(Relationship{ID: "r1", Algorithm: "a", Confidence: 0.7}, "", "")
	_, err := q.Confirm(s.ID, "user-1")
	require.NoError(t, err)

	mc.Advance(48 * time.Hour)
	removed := q.Cleanup()
	assert.Equal(t, 1, removed)
}
