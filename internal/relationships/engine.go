package relationships

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cordlesssteve/layered-memory/internal/clock"
	"github.com/cordlesssteve/layered-memory/internal/logging"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
)

// Config tunes detection fan-out (spec.md §4.5.1 defaults).
type Config struct {
	MaxCandidates   int     // N_cand, default 100
	MinConfidence   float64 // default 0.6
	BatchSize       int     // default 50
	MaxPerMemory    int     // N_rel, default 10
	CacheSize       int     // candidate-list cache entries, default 1000
	ReviewThreshold float64 // below MinConfidence but above this, queue for user validation (spec.md §4.6)
}

// DefaultConfig mirrors spec.md §4.5.1's documented defaults.
func DefaultConfig() Config {
	return Config{MaxCandidates: 100, MinConfidence: 0.6, BatchSize: 50, MaxPerMemory: 10, CacheSize: 1000, ReviewThreshold: 0.4}
}

// CandidateProvider returns existing items the engine should consider
// relating to item (e.g. same layer/project, via the router's search).
// The engine filters and caps this list itself (spec.md §4.5.1 step 1).
type CandidateProvider func(ctx context.Context, item *memtypes.MemoryItem) []*memtypes.MemoryItem

// Engine detects, stores, and serves relationships between memories
// (spec.md §4.5).
type Engine struct {
	cfg       Config
	detectors []Detector
	clock     clock.Clock
	log       *logging.Logger
	provider  CandidateProvider

	mu            sync.RWMutex
	relationships map[string]*Relationship // keyed by deterministic (source,target,type) id

	cache *lru.Cache[string, []*Relationship]
	queue *ValidationQueue
}

// New constructs an Engine. provider may be nil, in which case OnStore is a
// no-op (useful for layers/tests that don't wire a candidate source).
func New(cfg Config, clk clock.Clock, provider CandidateProvider) *Engine {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	cache, _ := lru.New[string, []*Relationship](cfg.CacheSize)
	return &Engine{
		cfg:           cfg,
		detectors:     Detectors(),
		clock:         clk,
		log:           logging.GetLogger("relationships"),
		provider:      provider,
		relationships: make(map[string]*Relationship),
		cache:         cache,
		queue:         NewValidationQueue(clk, 0),
	}
}

// Validation exposes the engine's user-validation queue (spec.md §4.6), e.g.
// for an admin API or CLI to list/confirm/reject pending suggestions.
func (e *Engine) Validation() *ValidationQueue { return e.queue }

// edgeID deterministically identifies an edge by (source, target, type)
// (spec.md §4.5.1 step 4).
func edgeID(sourceID, targetID string, t Type) string {
	sum := sha256.Sum256([]byte(sourceID + "|" + targetID + "|" + string(t)))
	return hex.EncodeToString(sum[:])[:16]
}

// candidateCacheKey keys the candidate-list cache by (new item id, sorted
// candidate ids) per spec.md §4.5.1 step 2.
func candidateCacheKey(newID string, candidates []*memtypes.MemoryItem) string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	sort.Strings(ids)
	return newID + "::" + strings.Join(ids, ",")
}

// OnStore runs detection for a newly admitted item against candidates
// supplied by the engine's CandidateProvider (spec.md §4.5.1). It never
// returns an error: a failure anywhere is logged and treated as "no
// relationships found" so it never fails the store that triggered it
// (spec.md §7).
func (e *Engine) OnStore(ctx context.Context, _ memtypes.Layer, item *memtypes.MemoryItem) {
	if e.provider == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic recovered during relationship detection", "panic", r, "memory_id", item.ID)
		}
	}()

	candidates := e.filterCandidates(e.provider(ctx, item))
	key := candidateCacheKey(item.ID, candidates)
	if cached, ok := e.cache.Get(key); ok {
		e.storeTop(item.ID, filterByConfidence(cached, e.cfg.MinConfidence))
		e.enqueueForReview(item, candidates, cached)
		return
	}

	found := e.detectBatched(ctx, item, candidates)
	e.cache.Add(key, found)
	e.storeTop(item.ID, filterByConfidence(found, e.cfg.MinConfidence))
	e.enqueueForReview(item, candidates, found)
}

// enqueueForReview queues suggestions that fall below MinConfidence but
// above ReviewThreshold for user validation, rather than discarding them
// outright (spec.md §4.6 "suggestions below min_confidence but above a
// review threshold are queued for user validation").
func (e *Engine) enqueueForReview(item *memtypes.MemoryItem, candidates []*memtypes.MemoryItem, found []*Relationship) {
	if e.queue == nil || e.cfg.ReviewThreshold <= 0 {
		return
	}
	contentByID := make(map[string]string, len(candidates)+1)
	contentByID[item.ID] = item.Content
	for _, c := range candidates {
		contentByID[c.ID] = c.Content
	}
	for _, rel := range found {
		if rel.Confidence >= e.cfg.MinConfidence || rel.Confidence < e.cfg.ReviewThreshold {
			continue
		}
		e.queue.Enqueue(*rel, contentByID[rel.SourceID], contentByID[rel.TargetID])
	}
}

// filterCandidates keeps at most MaxCandidates items with priority >= 3
// (spec.md §4.5.1 step 1).
func (e *Engine) filterCandidates(candidates []*memtypes.MemoryItem) []*memtypes.MemoryItem {
	out := make([]*memtypes.MemoryItem, 0, len(candidates))
	for _, c := range candidates {
		if c.Metadata.Priority >= 3 {
			out = append(out, c)
		}
		if len(out) >= e.cfg.MaxCandidates {
			break
		}
	}
	return out
}

// detectBatched runs all eight detectors against each candidate, in
// batches, so cancellation can stop at a batch boundary (spec.md §4.5.1
// step 3, §5 "in-flight batch detectors ... stop at the next batch
// boundary"). Within a batch, candidates are checked concurrently via
// errgroup; the group is bounded to the batch itself so a cancellation
// between batches never leaves a larger pool of detectors in flight.
func (e *Engine) detectBatched(ctx context.Context, newItem *memtypes.MemoryItem, candidates []*memtypes.MemoryItem) []*Relationship {
	var found []*Relationship
	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	for start := 0; start < len(candidates); start += batchSize {
		select {
		case <-ctx.Done():
			return found
		default:
		}

		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		results := make([][]*Relationship, len(batch))

		g, _ := errgroup.WithContext(ctx)
		for i, candidate := range batch {
			i, candidate := i, candidate
			g.Go(func() error {
				results[i] = e.detectPair(newItem, candidate)
				return nil
			})
		}
		_ = g.Wait() // detectPair never returns an error; recovers its own panics

		for _, edges := range results {
			found = append(found, edges...)
		}
	}
	return found
}

func (e *Engine) detectPair(newItem, candidate *memtypes.MemoryItem) []*Relationship {
	var edges []*Relationship
	for _, d := range e.detectors {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("panic recovered in detector", "panic", r, "detector", d.Type(), "pair", [2]string{newItem.ID, candidate.ID})
				}
			}()
			confidence, ok := d.Detect(newItem, candidate)
			if !ok {
				return
			}
			edges = append(edges, &Relationship{
				ID:         edgeID(newItem.ID, candidate.ID, d.Type()),
				SourceID:   newItem.ID,
				TargetID:   candidate.ID,
				Type:       d.Type(),
				Confidence: confidence,
				Weight:     d.Weight(),
				Algorithm:  fmt.Sprintf("%s_detector_v1", d.Type()),
				Source:     SourceAutoDetected,
				CreatedAt:  e.clock.Now(),
			})
		}()
	}
	return edges
}

func filterByConfidence(rels []*Relationship, min float64) []*Relationship {
	out := make([]*Relationship, 0, len(rels))
	for _, r := range rels {
		if r.Confidence >= min {
			out = append(out, r)
		}
	}
	return out
}

// storeTop keeps at most MaxPerMemory highest-confidence edges for newID
// (spec.md §4.5.1 step 4).
func (e *Engine) storeTop(newID string, edges []*Relationship) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Confidence > edges[j].Confidence })
	if len(edges) > e.cfg.MaxPerMemory {
		edges = edges[:e.cfg.MaxPerMemory]
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, edge := range edges {
		e.relationships[edge.ID] = edge
	}
}

// ForMemory returns every relationship touching id, newest first.
func (e *Engine) ForMemory(id string) []*Relationship {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Relationship, 0)
	for _, r := range e.relationships {
		if r.SourceID == id || r.TargetID == id {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// DropMemory removes every edge touching id (spec.md §3 "Relationships ...
// deleted when either endpoint is deleted").
func (e *Engine) DropMemory(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, r := range e.relationships {
		if r.SourceID == id || r.TargetID == id {
			delete(e.relationships, key)
		}
	}
}

// All returns a snapshot of every relationship, for graph/conflict
// computation which must iterate a stable snapshot rather than the live
// map (spec.md §5).
func (e *Engine) All() []*Relationship {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Relationship, 0, len(e.relationships))
	for _, r := range e.relationships {
		out = append(out, r)
	}
	return out
}

// Confirm promotes an auto-detected edge, making its confidence
// monotonically non-decreasing (spec.md §3 invariant).
func (e *Engine) Confirm(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.relationships[id]
	if !ok {
		return false
	}
	r.Source = SourceUserConfirmed
	return true
}
