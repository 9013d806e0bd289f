package relationships

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cordlesssteve/layered-memory/internal/clock"
)

// Preferences tracks one user's accumulated feedback on suggestions, used
// to rank getSmartSuggestions (spec.md §4.6).
type Preferences struct {
	AlgorithmTrust     map[string]float64 // algorithm -> trust, [0,1]
	TypePreference     map[Type]float64   // type -> preference, [0,1]
	ConfidenceThreshold float64
}

func newPreferences() *Preferences {
	return &Preferences{
		AlgorithmTrust:      make(map[string]float64),
		TypePreference:      make(map[Type]float64),
		ConfidenceThreshold: 0.6,
	}
}

// ValidationQueue holds pending RelationshipSuggestions and per-user
// preference state (spec.md §4.6).
type ValidationQueue struct {
	mu      sync.Mutex
	clock   clock.Clock
	pending map[string]*Suggestion
	history []*Suggestion
	prefs   map[string]*Preferences // keyed by user id
	maxAge  time.Duration
}

// NewValidationQueue constructs an empty queue. maxAge bounds how long a
// resolved suggestion is kept in history before Cleanup drops it (default
// 30 days, spec.md §4.6).
func NewValidationQueue(clk clock.Clock, maxAge time.Duration) *ValidationQueue {
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &ValidationQueue{
		clock:   clk,
		pending: make(map[string]*Suggestion),
		prefs:   make(map[string]*Preferences),
		maxAge:  maxAge,
	}
}

// Enqueue adds a relationship as a pending suggestion.
func (q *ValidationQueue) Enqueue(rel Relationship, sourceContent, targetContent string) *Suggestion {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := &Suggestion{
		ID:            fmt.Sprintf("sugg-%s", rel.ID),
		Relationship:  rel,
		SourceContent: sourceContent,
		TargetContent: targetContent,
		Status:        StatusPending,
		SuggestedAt:   q.clock.Now(),
		Algorithm:     rel.Algorithm,
		Confidence:    rel.Confidence,
	}
	q.pending[s.ID] = s
	return s
}

// Confirm accepts a suggestion, moving it to history and nudging the
// user's preferences upward (spec.md §4.6).
func (q *ValidationQueue) Confirm(id, userID string) (*Suggestion, error) {
	return q.resolve(id, userID, StatusConfirmed, +0.05, +0.03)
}

// Reject declines a suggestion, nudging preferences downward.
func (q *ValidationQueue) Reject(id, userID string) (*Suggestion, error) {
	return q.resolve(id, userID, StatusRejected, -0.05, -0.03)
}

// Modify overrides the suggested type/confidence before accepting it.
func (q *ValidationQueue) Modify(id, userID string, newType *Type, newConfidence *float64) (*Suggestion, error) {
	q.mu.Lock()
	s, ok := q.pending[id]
	if !ok {
		q.mu.Unlock()
		return nil, fmt.Errorf("suggestion %s not found", id)
	}
	s.ModifiedType = newType
	s.ModifiedConfidence = newConfidence
	q.mu.Unlock()

	return q.resolve(id, userID, StatusModified, +0.05, +0.03)
}

func (q *ValidationQueue) resolve(id, userID string, status SuggestionStatus, trustDelta, typeDelta float64) (*Suggestion, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.pending[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %s not found", id)
	}
	now := q.clock.Now()
	s.Status = status
	s.ValidatedAt = &now
	delete(q.pending, id)
	q.history = append(q.history, s)

	prefs, ok := q.prefs[userID]
	if !ok {
		prefs = newPreferences()
		q.prefs[userID] = prefs
	}
	prefs.AlgorithmTrust[s.Algorithm] = clamp01(prefs.AlgorithmTrust[s.Algorithm] + trustDelta)
	prefs.TypePreference[s.Relationship.Type] = clamp01(prefs.TypePreference[s.Relationship.Type] + typeDelta)

	return s, nil
}

// BatchValidate applies the same action ("confirm" or "reject") to every id.
func (q *ValidationQueue) BatchValidate(ids []string, userID, action string) ([]*Suggestion, []error) {
	var resolved []*Suggestion
	var errs []error
	for _, id := range ids {
		var s *Suggestion
		var err error
		switch action {
		case "confirm":
			s, err = q.Confirm(id, userID)
		case "reject":
			s, err = q.Reject(id, userID)
		default:
			err = fmt.Errorf("unknown batch_validate action %q", action)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resolved = append(resolved, s)
	}
	return resolved, errs
}

// GetSmartSuggestions returns pending suggestions ranked by a priority
// score combining the user's confidence threshold, type preference, and
// algorithm trust (spec.md §4.6).
func (q *ValidationQueue) GetSmartSuggestions(userID string) []*Suggestion {
	q.mu.Lock()
	defer q.mu.Unlock()

	prefs, ok := q.prefs[userID]
	if !ok {
		prefs = newPreferences()
	}

	type scored struct {
		s        *Suggestion
		priority float64
	}
	candidates := make([]scored, 0, len(q.pending))
	for _, s := range q.pending {
		if s.Confidence < prefs.ConfidenceThreshold {
			continue
		}
		typePref := prefs.TypePreference[s.Relationship.Type]
		trust := prefs.AlgorithmTrust[s.Algorithm]
		priority := s.Confidence + 0.3*typePref + 0.2*trust
		candidates = append(candidates, scored{s, priority})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].priority > candidates[j].priority })

	out := make([]*Suggestion, len(candidates))
	for i, c := range candidates {
		out[i] = c.s
	}
	return out
}

// Cleanup removes history entries older than maxAge (default 30 days).
func (q *ValidationQueue) Cleanup() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.clock.Now().Add(-q.maxAge)
	kept := q.history[:0]
	removed := 0
	for _, s := range q.history {
		if s.ValidatedAt != nil && s.ValidatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	q.history = kept
	return removed
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
