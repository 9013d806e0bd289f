package tenant

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordlesssteve/layered-memory/internal/clock"
	"github.com/cordlesssteve/layered-memory/internal/layer"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
	"github.com/cordlesssteve/layered-memory/internal/ratelimit"
	"github.com/cordlesssteve/layered-memory/internal/router"
	"github.com/cordlesssteve/layered-memory/internal/snapshot"
)

func newOverlay(t *testing.T, cfg Config, clk clock.Clock) *Overlay {
	t.Helper()
	layers := map[memtypes.Layer]*layer.Layer{}
	for _, name := range memtypes.AllLayers {
		snap := snapshot.New(filepath.Join(t.TempDir(), string(name)+".json"))
		layers[name] = layer.New(layer.Policy{Name: name, MaxItems: 1000, MaxBytes: 10 << 20}, snap, clk, nil)
	}
	r := router.New(router.DefaultConfig(), layers, clk.Now)
	return New(cfg, r, clk)
}

func TestStoreStampsTenantAndCreatedBy(t *testing.T) {
	clk := clock.Fixed(time.Now())
	o := newOverlay(t, DefaultConfig(), clk)

	tctx := &Context{TenantID: "acme", UserID: "alice"}
	stored, err := o.Store(context.Background(), tctx, &memtypes.MemoryItem{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "acme", stored.Metadata.TenantID)
	assert.Equal(t, "alice", stored.Metadata.CreatedBy)
}

func TestRetrieveHidesItemsFromOtherTenants(t *testing.T) {
	clk := clock.Fixed(time.Now())
	o := newOverlay(t, DefaultConfig(), clk)

	owner := &Context{TenantID: "acme", UserID: "alice"}
	stored, err := o.Store(context.Background(), owner, &memtypes.MemoryItem{Content: "secret"})
	require.NoError(t, err)

	_, ok := o.Retrieve(owner, stored.ID)
	assert.True(t, ok)

	intruder := &Context{TenantID: "other", UserID: "mallory"}
	_, ok = o.Retrieve(intruder, stored.ID)
	assert.False(t, ok, "a non-visible id must behave as if it does not exist")
}

func TestSearchFiltersResultsByTenant(t *testing.T) {
	clk := clock.Fixed(time.Now())
	o := newOverlay(t, DefaultConfig(), clk)

	a := &Context{TenantID: "acme", UserID: "alice"}
	b := &Context{TenantID: "globex", UserID: "bob"}

	_, err := o.Store(context.Background(), a, &memtypes.MemoryItem{Content: "acme widget design"})
	require.NoError(t, err)
	_, err = o.Store(context.Background(), b, &memtypes.MemoryItem{Content: "globex widget design"})
	require.NoError(t, err)

	results := o.Search(context.Background(), a, "widget design", 10)
	for _, r := range results {
		assert.Equal(t, "acme", r.Item.Metadata.TenantID)
	}
}

func TestRequireAuthRejectsNilContext(t *testing.T) {
	clk := clock.Fixed(time.Now())
	cfg := DefaultConfig()
	cfg.RequireAuth = true
	o := newOverlay(t, cfg, clk)

	stored, err := o.Store(context.Background(), nil, &memtypes.MemoryItem{Content: "x"})
	assert.NoError(t, err, "a nil context under require_auth returns empty, not an error")
	assert.Nil(t, stored)

	results := o.Search(context.Background(), nil, "x", 10)
	assert.Empty(t, results)
}

func TestWithoutRequireAuthNilContextIsTreatedAsPublic(t *testing.T) {
	clk := clock.Fixed(time.Now())
	o := newOverlay(t, DefaultConfig(), clk)

	stored, err := o.Store(context.Background(), nil, &memtypes.MemoryItem{Content: "public item"})
	require.NoError(t, err)
	item, ok := o.Retrieve(nil, stored.ID)
	assert.True(t, ok)
	assert.Equal(t, "public item", item.Content)
}

func TestExpiredContextIsRejected(t *testing.T) {
	clk := clock.Fixed(time.Now())
	expired := clk.Now().Add(-time.Hour)
	o := newOverlay(t, DefaultConfig(), clk)

	tctx := &Context{TenantID: "acme", UserID: "alice", ExpiresAt: &expired}
	_, err := o.Store(context.Background(), tctx, &memtypes.MemoryItem{Content: "x"})
	assert.ErrorIs(t, err, memtypes.ErrAuthRequired)
}

func TestRateLimitExhaustionReturnsDedicatedError(t *testing.T) {
	clk := clock.Fixed(time.Now())
	cfg := DefaultConfig()
	cfg.RateLimit = &ratelimit.Config{
		Enabled: true,
		Global:  ratelimit.LimitConfig{RequestsPerSecond: 100, BurstSize: 100},
		Operations: []ratelimit.OperationLimit{
			{Name: "store", RequestsPerSecond: 0.0001, BurstSize: 1},
		},
	}
	o := newOverlay(t, cfg, clk)

	tctx := &Context{TenantID: "acme", UserID: "alice"}
	_, err := o.Store(context.Background(), tctx, &memtypes.MemoryItem{Content: "first"})
	require.NoError(t, err)

	_, err = o.Store(context.Background(), tctx, &memtypes.MemoryItem{Content: "second"})
	assert.ErrorIs(t, err, memtypes.ErrRateLimited)
}

func TestUpdateAndDeleteRespectTenantVisibility(t *testing.T) {
	clk := clock.Fixed(time.Now())
	o := newOverlay(t, DefaultConfig(), clk)

	owner := &Context{TenantID: "acme", UserID: "alice"}
	stored, err := o.Store(context.Background(), owner, &memtypes.MemoryItem{Content: "v1"})
	require.NoError(t, err)

	intruder := &Context{TenantID: "other", UserID: "mallory"}
	patch := "v2-from-intruder"
	_, err = o.Update(context.Background(), intruder, stored.ID, &patch, nil)
	assert.ErrorIs(t, err, memtypes.ErrNotFound)

	assert.False(t, o.Delete(intruder, stored.ID))
	assert.True(t, o.Delete(owner, stored.ID))
}

type fakeSink struct{ events []Event }

func (f *fakeSink) Append(ev Event) error {
	f.events = append(f.events, ev)
	return nil
}

func TestDurableSinkReceivesEveryEvent(t *testing.T) {
	clk := clock.Fixed(time.Now())
	o := newOverlay(t, DefaultConfig(), clk)
	sink := &fakeSink{}
	o.SetDurableSink(sink)

	tctx := &Context{TenantID: "acme", UserID: "alice"}
	_, err := o.Store(context.Background(), tctx, &memtypes.MemoryItem{Content: "x"})
	require.NoError(t, err)

	require.NotEmpty(t, sink.events)
	assert.Equal(t, "acme", sink.events[len(sink.events)-1].TenantID)
}

func TestAuditLogRecordsStoreAndDeniedEvents(t *testing.T) {
	clk := clock.Fixed(time.Now())
	cfg := DefaultConfig()
	cfg.RequireAuth = true
	o := newOverlay(t, cfg, clk)

	stored0, err := o.Store(context.Background(), nil, &memtypes.MemoryItem{Content: "x"})
	require.NoError(t, err)
	require.Nil(t, stored0)

	tctx := &Context{TenantID: "acme", UserID: "alice"}
	stored, err := o.Store(context.Background(), tctx, &memtypes.MemoryItem{Content: "y"})
	require.NoError(t, err)

	events := o.Audit().ForTenant("acme")
	require.NotEmpty(t, events)
	assert.Equal(t, stored.ID, events[len(events)-1].Resource)

	denied := o.Audit().ForTenant("")
	require.Len(t, denied, 1)
	assert.Equal(t, SeverityWarning, denied[0].Severity)
}
