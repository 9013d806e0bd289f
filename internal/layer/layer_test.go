package layer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordlesssteve/layered-memory/internal/clock"
	"github.com/cordlesssteve/layered-memory/internal/embedding"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
	"github.com/cordlesssteve/layered-memory/internal/snapshot"
)

func newTestLayer(t *testing.T, policy Policy, clk clock.Clock) *Layer {
	t.Helper()
	snap := snapshot.New(filepath.Join(t.TempDir(), "items.json"))
	var backend *embedding.Backend
	if policy.HasVector {
		backend = embedding.NewBackend(policy.VectorDimension, embedding.DeterministicFake(policy.VectorDimension))
	}
	return New(policy, snap, clk, backend)
}

func TestStoreAssignsIDAndTimestamps(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, clock.Fixed(now))

	item, err := l.Store(context.Background(), &memtypes.MemoryItem{Content: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, now, item.CreatedAt)
	assert.Equal(t, now, item.UpdatedAt)
	assert.EqualValues(t, 0, item.AccessCount)
}

func TestStoreRejectsInvalidContent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, clock.Fixed(now))

	item, err := l.Store(context.Background(), &memtypes.MemoryItem{Content: "   "})
	assert.ErrorIs(t, err, memtypes.ErrValidationFailed)
	assert.Nil(t, item)
}

func TestUpdateRejectsInvalidContentPatch(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, clock.Fixed(now))

	item, err := l.Store(context.Background(), &memtypes.MemoryItem{Content: "valid content"})
	require.NoError(t, err)

	bad := "<script>alert(1)</script>"
	updated, err := l.Update(context.Background(), item.ID, &bad, nil)
	assert.ErrorIs(t, err, memtypes.ErrValidationFailed)
	assert.Nil(t, updated)
}

func TestStoreAppliesLayerTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLayer(t, Policy{Name: memtypes.LayerProject, MaxItems: 10, MaxBytes: 1 << 20, TTL: 30 * 24 * time.Hour}, clock.Fixed(now))

	item, err := l.Store(context.Background(), &memtypes.MemoryItem{Content: "hello"})
	require.NoError(t, err)
	require.NotNil(t, item.Metadata.ExpiresAt)
	assert.Equal(t, now.Add(30*24*time.Hour), *item.Metadata.ExpiresAt)
}

func TestRetrieveBumpsAccessCountAndMissReturnsNil(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := clock.NewManual(now)
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, mc)

	item, err := l.Store(context.Background(), &memtypes.MemoryItem{Content: "hello"})
	require.NoError(t, err)

	mc.Advance(time.Hour)
	got := l.Retrieve(item.ID)
	require.NotNil(t, got)
	assert.EqualValues(t, 1, got.AccessCount)

	assert.Nil(t, l.Retrieve("nonexistent"))
}

func TestUpdateContentReindexesLexically(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, clock.Fixed(now))

	item, err := l.Store(context.Background(), &memtypes.MemoryItem{Content: "react login bug"})
	require.NoError(t, err)

	newContent := "python parser rewrite"
	_, err = l.Update(context.Background(), item.ID, &newContent, nil)
	require.NoError(t, err)

	results := l.Search(context.Background(), "python", 10)
	require.Len(t, results, 1)
	assert.Equal(t, item.ID, results[0].Item.ID)

	results = l.Search(context.Background(), "react", 10)
	assert.Empty(t, results)
}

func TestUpdateMissingIDFails(t *testing.T) {
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, clock.Real())
	_, err := l.Update(context.Background(), "missing", nil, nil)
	require.ErrorIs(t, err, memtypes.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, clock.Real())
	item, _ := l.Store(context.Background(), &memtypes.MemoryItem{Content: "hello"})

	assert.True(t, l.Delete(item.ID))
	assert.False(t, l.Delete(item.ID))
}

func TestCapacityEnforcementEvictsLeastRecentlyAccessed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := clock.NewManual(now)
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 2, MaxBytes: 1 << 20}, mc)

	first, _ := l.Store(context.Background(), &memtypes.MemoryItem{Content: "first"})
	mc.Advance(time.Minute)
	l.Store(context.Background(), &memtypes.MemoryItem{Content: "second"})
	mc.Advance(time.Minute)
	l.Store(context.Background(), &memtypes.MemoryItem{Content: "third"})

	assert.Equal(t, 2, l.Stats().ItemCount)
	assert.Nil(t, l.Retrieve(first.ID), "oldest item should have been evicted")
}

func TestStoreReturnsErrorWhenSingleItemExceedsMaxBytes(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := clock.NewManual(now)
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 64}, mc)

	item, err := l.Store(context.Background(), &memtypes.MemoryItem{Content: strings.Repeat("x", 1000)})
	require.Error(t, err)
	assert.ErrorIs(t, err, memtypes.ErrCapacityExhausted)
	assert.Nil(t, item)
	assert.Equal(t, 0, l.Stats().ItemCount, "the oversized item must not remain in the store")
}

func TestTemporalLayerEvictsOldestRarelyAccessedFirst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := clock.NewManual(now)
	l := newTestLayer(t, Policy{Name: memtypes.LayerTemporal, MaxItems: 2, MaxBytes: 1 << 20}, mc)

	oldest, _ := l.Store(context.Background(), &memtypes.MemoryItem{Content: "oldest, frequently accessed"})
	mc.Advance(time.Minute)
	middle, _ := l.Store(context.Background(), &memtypes.MemoryItem{Content: "middle, never accessed"})

	for i := 0; i < 5; i++ {
		l.Retrieve(oldest.ID)
		mc.Advance(time.Second)
	}

	mc.Advance(time.Minute)
	l.Store(context.Background(), &memtypes.MemoryItem{Content: "newest"})

	assert.NotNil(t, l.Retrieve(oldest.ID), "frequently accessed item should survive despite being oldest")
	assert.Nil(t, l.Retrieve(middle.ID), "rarely accessed item should be evicted first")
}

func TestCleanupRemovesExpiredItems(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := clock.NewManual(now)
	l := newTestLayer(t, Policy{Name: memtypes.LayerProject, MaxItems: 10, MaxBytes: 1 << 20, TTL: time.Hour}, mc)

	item, _ := l.Store(context.Background(), &memtypes.MemoryItem{Content: "hello"})

	mc.Advance(2 * time.Hour)
	l.Cleanup(mc.Now())

	assert.Nil(t, l.Retrieve(item.ID))
}

func TestSearchLexicalScoringAndExplanation(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, clock.Fixed(now))

	_, err := l.Store(context.Background(), &memtypes.MemoryItem{
		Content:  "debugging the authentication flow",
		Metadata: memtypes.Metadata{Category: "bugs", Priority: 8},
	})
	require.NoError(t, err)

	results := l.Search(context.Background(), "authentication", 10)
	require.Len(t, results, 1)
	assert.Greater(t, results[0].Score, 0.0)
	assert.NotEmpty(t, results[0].Explanation)
}

func TestSearchHybridCombinesLexicalAndVector(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLayer(t, Policy{Name: memtypes.LayerGlobal, MaxItems: 10, MaxBytes: 1 << 20, HasVector: true, VectorDimension: 16}, clock.Fixed(now))

	_, err := l.Store(context.Background(), &memtypes.MemoryItem{Content: "vector database indexing strategies"})
	require.NoError(t, err)

	results := l.Search(context.Background(), "vector database indexing strategies", 10)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Explanation, "semantic similarity")
}

func TestBackupRestoreRoundTrips(t *testing.T) {
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, clock.Real())
	item, err := l.Store(context.Background(), &memtypes.MemoryItem{Content: "hello"})
	require.NoError(t, err)

	id, err := l.Backup()
	require.NoError(t, err)

	l.Delete(item.ID)
	require.NoError(t, l.Restore(context.Background(), id))

	assert.NotNil(t, l.Retrieve(item.ID))
}

func TestFlushIsNoOpWhenNotDirty(t *testing.T) {
	l := newTestLayer(t, Policy{Name: memtypes.LayerSession, MaxItems: 10, MaxBytes: 1 << 20}, clock.Real())
	require.NoError(t, l.Flush())
	require.NoError(t, l.Flush())
}
