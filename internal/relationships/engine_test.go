package relationships

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordlesssteve/layered-memory/internal/clock"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
)

func TestOnStoreDetectsAndKeepsTopEdges(t *testing.T) {
	now := time.Now()
	candidate := mkItem("cand-1", "the outage occurred because of a bad deploy", []string{"ops"}, "", now)
	candidate.Metadata.Priority = 5

	provider := func(_ context.Context, item *memtypes.MemoryItem) []*memtypes.MemoryItem {
		return []*memtypes.MemoryItem{candidate}
	}

	cfg := DefaultConfig()
	e := New(cfg, clock.Fixed(now), provider)

	newItem := mkItem("new-1", "because of the deploy, errors spiked", nil, "", now)
	newItem.Metadata.Priority = 5

	e.OnStore(context.Background(), memtypes.LayerProject, newItem)

	rels := e.ForMemory("new-1")
	require.NotEmpty(t, rels)
	assert.Equal(t, TypeCausal, rels[0].Type)
}

func TestOnStoreFiltersLowPriorityCandidates(t *testing.T) {
	now := time.Now()
	lowPriority := mkItem("cand-low", "because of the deploy", nil, "", now)
	lowPriority.Metadata.Priority = 1

	provider := func(_ context.Context, item *memtypes.MemoryItem) []*memtypes.MemoryItem {
		return []*memtypes.MemoryItem{lowPriority}
	}

	e := New(DefaultConfig(), clock.Fixed(now), provider)
	newItem := mkItem("new-1", "because of the deploy", nil, "", now)
	e.OnStore(context.Background(), memtypes.LayerProject, newItem)

	assert.Empty(t, e.ForMemory("new-1"))
}

func TestOnStoreWithNilProviderIsNoOp(t *testing.T) {
	e := New(DefaultConfig(), clock.Real(), nil)
	e.OnStore(context.Background(), memtypes.LayerProject, mkItem("a", "x", nil, "", time.Now()))
	assert.Empty(t, e.ForMemory("a"))
}

func TestDropMemoryRemovesAllItsEdges(t *testing.T) {
	now := time.Now()
	candidate := mkItem("cand-1", "because of the deploy", nil, "", now)
	candidate.Metadata.Priority = 5
	provider := func(_ context.Context, item *memtypes.MemoryItem) []*memtypes.MemoryItem {
		return []*memtypes.MemoryItem{candidate}
	}

	e := New(DefaultConfig(), clock.Fixed(now), provider)
	newItem := mkItem("new-1", "because of the deploy", nil, "", now)
	newItem.Metadata.Priority = 5
	e.OnStore(context.Background(), memtypes.LayerProject, newItem)
	require.NotEmpty(t, e.ForMemory("new-1"))

	e.DropMemory("new-1")
	assert.Empty(t, e.ForMemory("new-1"))
	assert.Empty(t, e.ForMemory("cand-1"))
}

func TestCandidateCacheReusesPriorResult(t *testing.T) {
	now := time.Now()
	calls := 0
	candidate := mkItem("cand-1", "because of the deploy", nil, "", now)
	candidate.Metadata.Priority = 5

	provider := func(_ context.Context, item *memtypes.MemoryItem) []*memtypes.MemoryItem {
		calls++
		return []*memtypes.MemoryItem{candidate}
	}

	e := New(DefaultConfig(), clock.Fixed(now), provider)
	newItem := mkItem("new-1", "because of the deploy", nil, "", now)
	newItem.Metadata.Priority = 5

	e.OnStore(context.Background(), memtypes.LayerProject, newItem)
	e.OnStore(context.Background(), memtypes.LayerProject, newItem)
	assert.Equal(t, 2, calls, "provider is still called each time; only the detector pass is cached")
	assert.NotEmpty(t, e.ForMemory("new-1"))
}

func TestEnqueueForReviewQueuesBelowMinConfidenceAboveThreshold(t *testing.T) {
	now := time.Now()
	e := New(DefaultConfig(), clock.Fixed(now), nil)

	source := mkItem("src", "source content", nil, "", now)
	target := mkItem("tgt", "target content", nil, "", now)
	candidates := []*memtypes.MemoryItem{target}

	belowReview := []*Relationship{{ID: "r-low", SourceID: "src", TargetID: "tgt", Type: TypeCausal, Algorithm: "x", Confidence: e.cfg.ReviewThreshold - 0.01}}
	inReviewBand := []*Relationship{{ID: "r-mid", SourceID: "src", TargetID: "tgt", Type: TypeCausal, Algorithm: "x", Confidence: (e.cfg.ReviewThreshold + e.cfg.MinConfidence) / 2}}
	aboveMin := []*Relationship{{ID: "r-high", SourceID: "src", TargetID: "tgt", Type: TypeCausal, Algorithm: "x", Confidence: e.cfg.MinConfidence}}

	e.enqueueForReview(source, candidates, belowReview)
	e.enqueueForReview(source, candidates, inReviewBand)
	e.enqueueForReview(source, candidates, aboveMin)

	pending := e.queue.GetSmartSuggestions("nobody")
	assert.Empty(t, pending, "GetSmartSuggestions applies a per-user confidence floor, not relevant here")

	e.queue.mu.Lock()
	_, queued := e.queue.pending["sugg-r-mid"]
	_, tooLow := e.queue.pending["sugg-r-low"]
	_, tooHigh := e.queue.pending["sugg-r-high"]
	e.queue.mu.Unlock()

	assert.True(t, queued, "a mid-band suggestion should be queued for review")
	assert.False(t, tooLow, "below the review threshold should be dropped, not queued")
	assert.False(t, tooHigh, "at/above min_confidence is auto-accepted, not queued for review")
}
