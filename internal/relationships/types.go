// Package relationships discovers, scores, and manages edges between
// memories: the eight closed-set detectors of spec.md §4.5.2, the
// knowledge-graph view of §4.5.3, conflict detection of §4.5.4, the decay
// predictor of §4.5.5, and the validation queue of §4.6.
package relationships

import "time"

// Type is one of the eight detector kinds (spec.md §4.5.2). Distinct from
// the reference teacher's free-form relationship-type strings: this
// engine's types are a closed set produced by pattern detection, not user
// input.
type Type string

const (
	TypeReference    Type = "reference"
	TypeContextual   Type = "contextual"
	TypeCausal       Type = "causal"
	TypeTemporal     Type = "temporal"
	TypeHierarchical Type = "hierarchical"
	TypeContradiction Type = "contradiction"
	TypeConfirmation Type = "confirmation"
	TypeEvolution    Type = "evolution"
)

// Source records how a relationship entered the graph (spec.md §3).
type Source string

const (
	SourceAutoDetected Source = "auto_detected"
	SourceUserConfirmed Source = "user_confirmed"
	SourceUserModified Source = "user_modified"
)

// Relationship is one edge between two distinct memories (spec.md §3
// MemoryRelationship).
type Relationship struct {
	ID         string
	SourceID   string
	TargetID   string
	Type       Type
	Confidence float64
	Weight     float64
	Algorithm  string
	Source     Source
	CreatedAt  time.Time
}

// SuggestionStatus is a RelationshipSuggestion's place in the validation
// queue (spec.md §3, §4.6).
type SuggestionStatus string

const (
	StatusPending   SuggestionStatus = "pending"
	StatusConfirmed SuggestionStatus = "confirmed"
	StatusRejected  SuggestionStatus = "rejected"
	StatusModified  SuggestionStatus = "modified"
)

// Suggestion is a queued candidate relationship awaiting user validation
// (spec.md §3 RelationshipSuggestion).
type Suggestion struct {
	ID                string
	Relationship      Relationship
	SourceContent     string
	TargetContent     string
	Status            SuggestionStatus
	SuggestedAt       time.Time
	ValidatedAt       *time.Time
	UserFeedback      string
	ModifiedType      *Type
	ModifiedConfidence *float64
	Algorithm         string
	Confidence        float64
}

// Recommendation is the decay predictor's verdict (spec.md §3
// DecayPrediction, §4.5.5).
type Recommendation string

const (
	RecommendPromote  Recommendation = "promote"
	RecommendMaintain Recommendation = "maintain"
	RecommendArchive  Recommendation = "archive"
	RecommendDelete   Recommendation = "delete"
)

// DecayPrediction is derived, never stored (spec.md §3).
type DecayPrediction struct {
	CurrentImportance   float64
	PredictedImportance float64
	DecayRate           float64
	TimeToObsolescence  float64 // days; 0 if already below threshold
	Confidence          float64
	Factors             map[string]float64
	Recommendation      Recommendation
}

// Conflict is a detected tension between two memories (spec.md §4.5.4).
type Conflict struct {
	SourceID           string
	TargetID           string
	Severity           string // "contradiction", "duplication", "inconsistency"
	Confidence         float64
	SuggestedResolution string
}
