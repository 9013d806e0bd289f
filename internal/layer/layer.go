// Package layer implements the memory-layer base contract shared by all
// four tiers (spec.md §4.1): a capacity-bounded, TTL-evicted store backed
// by a lexical index, a temporal index, and — for the global layer only —
// a dense vector index.
package layer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cordlesssteve/layered-memory/internal/clock"
	"github.com/cordlesssteve/layered-memory/internal/embedding"
	"github.com/cordlesssteve/layered-memory/internal/itemstore"
	"github.com/cordlesssteve/layered-memory/internal/lexical"
	"github.com/cordlesssteve/layered-memory/internal/logging"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
	"github.com/cordlesssteve/layered-memory/internal/snapshot"
	"github.com/cordlesssteve/layered-memory/internal/temporal"
	"github.com/cordlesssteve/layered-memory/internal/vectorindex"
)

// Policy is a layer's capacity/TTL/indexing configuration (spec.md §3
// table, §4.1.3, §4.1.4).
type Policy struct {
	Name                memtypes.Layer
	MaxItems            int
	MaxBytes            int64
	TTL                 time.Duration // 0 means no expiry applied at store time
	FlushInterval       time.Duration // 0 means no background flush (session layer)
	HasVector           bool
	VectorDimension     int
	HistoricalThreshold time.Duration // temporal layer only; 0 disables compression
}

// Result is one ranked hit from Search (spec.md §4.1 "search").
type Result struct {
	Item        *memtypes.MemoryItem
	Score       float64
	SourceLayer memtypes.Layer
	Explanation string
}

// Stats summarizes a layer's current occupancy.
type Stats struct {
	Layer     memtypes.Layer
	ItemCount int
	ByteSize  int64
	State     vectorindex.State // zero value if the layer has no vector index
}

// Layer composes an item store with lexical, temporal, and (optionally)
// vector indices behind the base contract of spec.md §4.1.
type Layer struct {
	policy Policy
	clock  clock.Clock
	log    *logging.Logger

	store    *itemstore.Store
	lex      *lexical.Index
	tmp      *temporal.Index
	vec      *vectorindex.Index
	embedder *embedding.Backend
	snap     *snapshot.Store

	mu    sync.Mutex
	dirty bool
}

// New constructs an empty layer. embedder may be nil when policy.HasVector
// is false.
func New(policy Policy, snap *snapshot.Store, clk clock.Clock, embedder *embedding.Backend) *Layer {
	l := &Layer{
		policy:   policy,
		clock:    clk,
		log:      logging.GetLogger(string(policy.Name) + "-layer"),
		store:    itemstore.New(),
		lex:      lexical.New(),
		tmp:      temporal.New(),
		snap:     snap,
		embedder: embedder,
	}
	if policy.HasVector {
		l.vec = vectorindex.New(vectorindex.DefaultConfig(policy.VectorDimension))
	}
	return l
}

// Load restores the layer's items (and vector blob, if present) from its
// snapshot file, rebuilding every index. A missing or unreadable snapshot
// is non-fatal: the layer starts empty and logs a warning (spec.md §7).
func (l *Layer) Load(ctx context.Context) {
	record, err := l.snap.Load()
	if err != nil {
		l.log.Warn("snapshot load failed, starting empty", "layer", l.policy.Name, "error", err)
		return
	}

	l.store.Replace(record.Items)
	for _, item := range record.Items {
		l.lex.Put(item.ID, lexical.IndexedText(item.Content, item.Metadata.Category, item.Metadata.Tags))
		l.tmp.Put(item.ID, item.CreatedAt)
	}

	if l.vec != nil && len(record.VectorBlob) > 0 {
		var vsnap vectorindex.Snapshot
		if err := json.Unmarshal(record.VectorBlob, &vsnap); err != nil {
			l.log.Warn("vector blob load failed, rebuilding from embeddings", "layer", l.policy.Name, "error", err)
			if l.embedder != nil {
				for _, item := range record.Items {
					if vec, err := l.embedder.Embed(ctx, item.Content); err == nil {
						_ = l.vec.Upsert(item.ID, vec)
					}
				}
			}
		} else if restored, err := vectorindex.FromSnapshot(vectorindex.DefaultConfig(l.policy.VectorDimension), vsnap); err == nil {
			l.vec = restored
		}
	}
}

// Store validates the item at the boundary, assigns a fresh id, applies
// layer defaults, indexes the item, and enforces capacity (spec.md §4.1
// "store", §6 "validation rules at the boundary").
func (l *Layer) Store(ctx context.Context, partial *memtypes.MemoryItem) (*memtypes.MemoryItem, error) {
	now := l.clock.Now()

	item := partial.Clone()
	if diags := memtypes.ValidateContent(item.Content); len(diags) > 0 {
		return nil, memtypes.NewValidationError(diags...)
	}
	if diags := memtypes.ValidateMetadata(item.Metadata, item.ID); len(diags) > 0 {
		return nil, memtypes.NewValidationError(diags...)
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	item.LastAccessedAt = now
	item.AccessCount = 0

	if item.Metadata.ExpiresAt == nil && l.policy.TTL > 0 {
		expiresAt := now.Add(l.policy.TTL)
		item.Metadata.ExpiresAt = &expiresAt
	}

	if l.vec != nil {
		vec, err := l.embedder.Embed(ctx, item.Content)
		if err != nil {
			l.log.Warn("embedding failed, storing without vector entry", "id", item.ID, "error", err)
		} else if err := l.vec.Upsert(item.ID, vec); err != nil {
			l.log.Warn("vector upsert failed", "id", item.ID, "error", err)
		}
	}

	l.store.Put(item)
	l.lex.Put(item.ID, lexical.IndexedText(item.Content, item.Metadata.Category, item.Metadata.Tags))
	l.tmp.Put(item.ID, item.CreatedAt)
	l.markDirty()

	if err := l.enforceCapacity(now); err != nil {
		l.Delete(item.ID)
		return nil, err
	}

	return item.Clone(), nil
}

// Retrieve returns the item and bumps its access_count, or nil on a miss
// with no side effect (spec.md §4.1 "retrieve").
func (l *Layer) Retrieve(id string) *memtypes.MemoryItem {
	return l.store.TouchAt(id, l.clock.Now())
}

// Has reports whether id is present, without the access-count side effect
// of Retrieve. Used to find an id's owning layer before an update/delete.
func (l *Layer) Has(id string) bool {
	return l.store.Has(id)
}

// Update applies a content/metadata patch, idempotently re-indexing on a
// content change (spec.md §4.1 "update").
func (l *Layer) Update(ctx context.Context, id string, contentPatch *string, metaPatch *memtypes.Metadata) (*memtypes.MemoryItem, error) {
	existing := l.store.Get(id)
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", memtypes.ErrNotFound, id)
	}

	if contentPatch != nil {
		if diags := memtypes.ValidateContent(*contentPatch); len(diags) > 0 {
			return nil, memtypes.NewValidationError(diags...)
		}
	}
	if metaPatch != nil {
		if diags := memtypes.ValidateMetadata(*metaPatch, ""); len(diags) > 0 {
			return nil, memtypes.NewValidationError(diags...)
		}
	}

	contentChanged := contentPatch != nil && *contentPatch != existing.Content
	if contentPatch != nil {
		existing.Content = *contentPatch
	}
	if metaPatch != nil {
		existing.Metadata = *metaPatch
	}
	existing.UpdatedAt = l.clock.Now()

	l.store.Put(existing)
	if contentChanged {
		l.lex.Put(existing.ID, lexical.IndexedText(existing.Content, existing.Metadata.Category, existing.Metadata.Tags))
		if l.vec != nil {
			vec, err := l.embedder.Embed(ctx, existing.Content)
			if err != nil {
				l.log.Warn("re-embedding failed on update", "id", id, "error", err)
			} else if err := l.vec.Upsert(existing.ID, vec); err != nil {
				l.log.Warn("vector re-upsert failed on update", "id", id, "error", err)
			}
		}
	}
	l.markDirty()

	return existing.Clone(), nil
}

// Delete removes id from the store and every index. Idempotent.
func (l *Layer) Delete(id string) bool {
	existed := l.store.Has(id)
	l.store.Delete(id)
	l.lex.Remove(id)
	l.tmp.Remove(id)
	if l.vec != nil {
		l.vec.Remove(id)
	}
	if existed {
		l.markDirty()
	}
	return existed
}

// BulkStore stores each item, returning the finalized items in order.
// Each item goes through Store, so capacity is enforced after every item.
func (l *Layer) BulkStore(ctx context.Context, partials []*memtypes.MemoryItem) ([]*memtypes.MemoryItem, error) {
	out := make([]*memtypes.MemoryItem, 0, len(partials))
	for _, p := range partials {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		item, err := l.Store(ctx, p)
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// BulkDelete deletes every id, stopping early if ctx is cancelled (spec.md
// §5 "cancellation ... stop at the next batch boundary").
func (l *Layer) BulkDelete(ctx context.Context, ids []string) int {
	deleted := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return deleted
		default:
		}
		if l.Delete(id) {
			deleted++
		}
	}
	return deleted
}

var wordBoundary = regexp.MustCompile(`\s+`)

// Cleanup removes expired items, optionally compresses old low-access
// temporal items, then enforces capacity (spec.md §4.1 "cleanup", §4.1.5).
func (l *Layer) Cleanup(now time.Time) {
	for _, item := range l.store.All() {
		if item.Metadata.ExpiresAt != nil && item.Metadata.ExpiresAt.Before(now) {
			l.Delete(item.ID)
		}
	}

	if l.policy.HistoricalThreshold > 0 {
		threshold := now.Add(-l.policy.HistoricalThreshold)
		for _, item := range l.store.All() {
			if item.CreatedAt.Before(threshold) && item.AccessCount < 2 {
				compressed := wordBoundary.ReplaceAllString(strings.TrimSpace(item.Content), " ")
				if compressed != item.Content {
					item.Content = compressed
					l.store.Put(item)
					l.lex.Put(item.ID, lexical.IndexedText(item.Content, item.Metadata.Category, item.Metadata.Tags))
				}
			}
		}
	}

	if err := l.enforceCapacity(now); err != nil {
		l.log.Warn("capacity exhausted during cleanup", "layer", l.policy.Name, "error", err)
	}
	l.markDirty()
}

// enforceCapacity evicts items until both the item count and byte size are
// within policy (spec.md §4.1.3). The temporal layer evicts by "oldest +
// rarely-accessed" rather than plain LRU (spec.md §3); the other layers
// evict least-recently-accessed first. If a single remaining item alone
// still exceeds MaxBytes, eviction can't help: it's reported as
// ErrCapacityExhausted rather than silently dropped.
func (l *Layer) enforceCapacity(now time.Time) error {
	if l.policy.MaxItems <= 0 {
		return nil
	}

	for l.store.Len() > l.policy.MaxItems || (l.policy.MaxBytes > 0 && l.store.TotalSize() > l.policy.MaxBytes) {
		if l.store.Len() <= 1 {
			return fmt.Errorf("%w: single item exceeds max_bytes for layer %s", memtypes.ErrCapacityExhausted, l.policy.Name)
		}
		id := l.evictionCandidate()
		if id == "" {
			return nil
		}
		l.Delete(id)
	}
	return nil
}

// evictionCandidate picks the next item to drop under capacity pressure.
func (l *Layer) evictionCandidate() string {
	if l.policy.Name == memtypes.LayerTemporal {
		return l.temporalEvictionCandidate()
	}
	ids := l.store.IDsByLastAccessedAsc()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// temporalEvictionCandidate picks the least-accessed item among the oldest
// few, implementing the temporal layer's "oldest + rarely-accessed" key
// (spec.md §3) rather than plain recency.
func (l *Layer) temporalEvictionCandidate() string {
	oldest := l.tmp.OldestIDs(10)
	if len(oldest) == 0 {
		return ""
	}
	candidate := oldest[0]
	lowest := -1
	for _, id := range oldest {
		item := l.store.Get(id)
		if item == nil {
			continue
		}
		if lowest == -1 || item.AccessCount < lowest {
			lowest = item.AccessCount
			candidate = id
		}
	}
	return candidate
}

// Search ranks items by hybrid lexical+vector score (spec.md §4.2.1,
// §4.2.2). If the layer has no vector index, scoring is lexical-only.
func (l *Layer) Search(ctx context.Context, query string, limit int) []Result {
	now := l.clock.Now()
	queryTokens := lexical.Tokenize(query)

	lexMatches := l.lex.CandidatesForTokens(queryTokens)
	lexScores := make(map[string]float64, len(lexMatches))
	lexExplain := make(map[string]string, len(lexMatches))
	denom := float64(len(queryTokens))
	if denom == 0 {
		denom = 1
	}

	for id, matchedCount := range lexMatches {
		item := l.store.Get(id)
		if item == nil {
			continue
		}
		score := float64(matchedCount) / denom
		if len(queryTokens) == 0 {
			score = 0.5
		}

		reasons := []string{fmt.Sprintf("matched %d/%d query tokens", matchedCount, len(queryTokens))}
		for _, qt := range queryTokens {
			if strings.Contains(strings.ToLower(item.Metadata.Category), qt) {
				score += 0.1
				reasons = append(reasons, "category match")
				break
			}
		}
		score += 0.05 * float64(item.Metadata.Priority) / 10
		if now.Sub(item.CreatedAt) < 24*time.Hour {
			score += 0.05
			reasons = append(reasons, "recent")
		}
		score += minFloat(float64(item.AccessCount)/10, 0.1)

		score = clamp01(score)
		lexScores[id] = score
		lexExplain[id] = strings.Join(reasons, "; ")
	}

	if l.vec == nil {
		return l.topResults(lexScores, lexExplain, limit)
	}

	vecScores, vecExplain := l.vectorScores(ctx, query)
	combined := make(map[string]float64, len(lexScores)+len(vecScores))
	explain := make(map[string]string, len(lexScores)+len(vecScores))

	for id, s := range lexScores {
		combined[id] = s
		explain[id] = lexExplain[id]
	}
	for id, vs := range vecScores {
		if ls, ok := lexScores[id]; ok {
			combined[id] = 0.3*ls + 0.7*vs
			explain[id] = explain[id] + "; " + vecExplain[id]
		} else {
			combined[id] = vs
			explain[id] = vecExplain[id]
		}
	}

	return l.topResults(combined, explain, limit)
}

func (l *Layer) vectorScores(ctx context.Context, query string) (map[string]float64, map[string]string) {
	scores := make(map[string]float64)
	explain := make(map[string]string)
	if l.embedder == nil {
		return scores, explain
	}

	qvec, err := l.embedder.Embed(ctx, query)
	if err != nil {
		l.log.Warn("query embedding failed, skipping vector scoring", "error", err)
		return scores, explain
	}

	results, err := l.vec.Search(qvec, l.vec.Len())
	if err != nil {
		l.log.Warn("vector search failed", "error", err)
		return scores, explain
	}
	for _, r := range results {
		if r.Score < 0.3 {
			continue
		}
		scores[r.ID] = r.Score
		explain[r.ID] = fmt.Sprintf("semantic similarity: %.3f", r.Score)
	}
	return scores, explain
}

func (l *Layer) topResults(scores map[string]float64, explain map[string]string, limit int) []Result {
	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		item := l.store.Get(id)
		if item == nil {
			continue
		}
		e := explain[id]
		if e == "" {
			e = fmt.Sprintf("similarity: %.3f", score)
		}
		results = append(results, Result{Item: item, Score: score, SourceLayer: l.policy.Name, Explanation: e})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
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

// Stats returns the layer's current occupancy.
func (l *Layer) Stats() Stats {
	s := Stats{Layer: l.policy.Name, ItemCount: l.store.Len(), ByteSize: l.store.TotalSize()}
	if l.vec != nil {
		s.State = l.vec.State()
	}
	return s
}

// Export returns every item currently in the layer.
func (l *Layer) Export() []*memtypes.MemoryItem {
	return l.store.All()
}

// Import replaces the layer's contents wholesale and rebuilds every index,
// used for restore() and bulk migration between layers (spec.md §3
// "migration between layers is an atomic delete-in-source, insert-in-target
// operation").
func (l *Layer) Import(ctx context.Context, items []*memtypes.MemoryItem) {
	l.store.Replace(items)
	l.lex = lexical.New()
	l.tmp = temporal.New()
	for _, item := range items {
		l.lex.Put(item.ID, lexical.IndexedText(item.Content, item.Metadata.Category, item.Metadata.Tags))
		l.tmp.Put(item.ID, item.CreatedAt)
	}
	if l.vec != nil {
		l.vec = vectorindex.New(vectorindex.DefaultConfig(l.policy.VectorDimension))
		for _, item := range items {
			vec, err := l.embedder.Embed(ctx, item.Content)
			if err != nil {
				l.log.Warn("re-embedding failed during import", "id", item.ID, "error", err)
				continue
			}
			_ = l.vec.Upsert(item.ID, vec)
		}
	}
	l.markDirty()
}

// Optimize compacts the vector index's tombstones and trains/re-indexes it
// if past the IVF threshold, then flushes to the snapshot file (spec.md
// §4.1.3 "close() and optimize() flush to the snapshot file").
func (l *Layer) Optimize() error {
	if l.vec != nil {
		l.vec.Optimize()
	}
	return l.Flush()
}

// Flush writes the current item set (and vector blob) to the snapshot file
// if the dirty flag is set (spec.md §4.1.4).
func (l *Layer) Flush() error {
	l.mu.Lock()
	dirty := l.dirty
	l.dirty = false
	l.mu.Unlock()
	if !dirty {
		return nil
	}

	var blob json.RawMessage
	if l.vec != nil {
		data, err := json.Marshal(l.vec.ToSnapshot())
		if err != nil {
			return fmt.Errorf("%w: marshal vector blob: %v", memtypes.ErrPersistenceFailed, err)
		}
		blob = data
	}

	return l.snap.Save(l.store.All(), blob, l.clock.Now())
}

func (l *Layer) markDirty() {
	l.mu.Lock()
	l.dirty = true
	l.mu.Unlock()
}

// Backup delegates to the snapshot store, first flushing pending writes so
// the backup reflects the latest state.
func (l *Layer) Backup() (string, error) {
	if err := l.Flush(); err != nil {
		return "", err
	}
	return l.snap.Backup(l.clock.Now())
}

// Restore replaces live state with a prior backup's contents, rebuilding
// every index (spec.md §4.1.4 "restore(id) atomically replaces live state
// ... rebuilding all indices").
func (l *Layer) Restore(ctx context.Context, id string) error {
	record, err := l.snap.Restore(id)
	if err != nil {
		return err
	}
	l.Import(ctx, record.Items)
	return nil
}

// Close flushes pending writes. Background flush scheduling lives in the
// caller (the engine's runtime), per layer FlushInterval (spec.md §4.1.4).
func (l *Layer) Close() error {
	return l.Flush()
}

// TemporalIndex exposes the layer's temporal index for operations specific
// to the temporal tier (spec.md §4.1.5 getTemporalContext/Similarities).
// Never nil: every layer keeps a temporal index, though only the temporal
// tier's router surface calls these operations.
func (l *Layer) TemporalIndex() *temporal.Index { return l.tmp }

// VectorIndex exposes the layer's dense index, or nil if HasVector is false.
func (l *Layer) VectorIndex() *vectorindex.Index { return l.vec }

// Policy returns the layer's configuration.
func (l *Layer) Policy() Policy { return l.policy }
