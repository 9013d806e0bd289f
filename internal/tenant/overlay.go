package tenant

import (
	"context"

	"github.com/cordlesssteve/layered-memory/internal/clock"
	"github.com/cordlesssteve/layered-memory/internal/layer"
	"github.com/cordlesssteve/layered-memory/internal/logging"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
	"github.com/cordlesssteve/layered-memory/internal/ratelimit"
	"github.com/cordlesssteve/layered-memory/internal/router"
)

// Config tunes the overlay (spec.md §4.7 and §9).
type Config struct {
	RequireAuth   bool
	AuditCapacity int // default 1000
	RateLimit     *ratelimit.Config
}

// DefaultConfig mirrors the spec's documented defaults.
func DefaultConfig() Config {
	return Config{RequireAuth: false, AuditCapacity: 1000, RateLimit: ratelimit.DefaultConfig()}
}

// DurableSink receives every audit event in addition to the bounded ring,
// e.g. internal/audit's SQLite-backed store. Append errors are logged, not
// propagated: a durable-sink outage must never fail the operation that
// triggered the event.
type DurableSink interface {
	Append(Event) error
}

// Overlay wraps a *router.Router with tenant stamping, read filtering,
// rate limiting, and audit logging (spec.md §4.7).
type Overlay struct {
	cfg     Config
	router  *router.Router
	clock   clock.Clock
	audit   *AuditLog
	limiter *ratelimit.Limiter
	sink    DurableSink
}

// New constructs an Overlay around r.
func New(cfg Config, r *router.Router, clk clock.Clock) *Overlay {
	return &Overlay{
		cfg:     cfg,
		router:  r,
		clock:   clk,
		audit:   NewAuditLog(clk, cfg.AuditCapacity),
		limiter: ratelimit.NewLimiter(cfg.RateLimit),
	}
}

// SetDurableSink wires an optional durable audit sink. Pass nil to disable.
func (o *Overlay) SetDurableSink(sink DurableSink) { o.sink = sink }

// Audit exposes the overlay's audit log, e.g. for an admin API.
func (o *Overlay) Audit() *AuditLog { return o.audit }

// authorize applies require_auth, context expiry and rate limiting. A
// non-nil error (memtypes.ErrAuthRequired or memtypes.ErrRateLimited) means
// the caller returns without touching the router.
func (o *Overlay) authorize(ctx *Context, operation string) error {
	if ctx == nil {
		if o.cfg.RequireAuth {
			return memtypes.ErrAuthRequired
		}
		return nil
	}
	if ctx.Expired(o.clock.Now()) {
		return memtypes.ErrAuthRequired
	}
	if result := o.limiter.Allow(operation, ctx.TenantID, ctx.UserID); !result.Allowed {
		return memtypes.ErrRateLimited
	}
	return nil
}

func tenantOf(ctx *Context) string {
	if ctx == nil {
		return ""
	}
	return ctx.TenantID
}

func userOf(ctx *Context) string {
	if ctx == nil {
		return ""
	}
	return ctx.UserID
}

// Store stamps meta.tenant_id and meta.created_by from ctx before
// admitting the item (spec.md §4.7).
func (o *Overlay) Store(ctx context.Context, tctx *Context, item *memtypes.MemoryItem) (*memtypes.MemoryItem, error) {
	if err := o.authorize(tctx, "store"); err != nil {
		o.recordDenied(tctx, "store", "", err)
		if tctx == nil && o.cfg.RequireAuth {
			return nil, nil
		}
		return nil, err
	}
	if tctx != nil {
		item.Metadata.TenantID = tctx.TenantID
		item.Metadata.CreatedBy = tctx.UserID
	}

	stored, _, err := o.router.Store(ctx, item)
	if err != nil {
		o.record(tctx, "store", "", SeverityError, err.Error())
		return nil, err
	}
	o.record(tctx, "store", stored.ID, SeverityInfo, "")
	return stored, nil
}

// Search fans out via the router and filters results to tctx's tenant.
// If require_auth is set and tctx is nil, it returns an empty slice rather
// than raising (spec.md §4.7).
func (o *Overlay) Search(ctx context.Context, tctx *Context, query string, limit int) []layer.Result {
	if err := o.authorize(tctx, "search"); err != nil {
		o.recordDenied(tctx, "search", "", err)
		return nil
	}

	results := o.router.Search(ctx, query, limit)
	visible := results[:0]
	for _, r := range results {
		if o.visible(tctx, r.Item) {
			visible = append(visible, r)
		}
	}
	o.record(tctx, "search", "", SeverityInfo, query)
	return visible
}

// Retrieve returns the item only if it is visible to tctx's tenant; a
// non-visible id is reported exactly as if it did not exist (spec.md
// §4.7).
func (o *Overlay) Retrieve(tctx *Context, id string) (*memtypes.MemoryItem, bool) {
	if err := o.authorize(tctx, "retrieve"); err != nil {
		o.recordDenied(tctx, "retrieve", id, err)
		return nil, false
	}

	item, _, ok := o.router.Retrieve(id)
	if !ok || !o.visible(tctx, item) {
		return nil, false
	}
	o.record(tctx, "retrieve", id, SeverityInfo, "")
	return item, true
}

// Update applies the patch only if the target item is visible to tctx.
func (o *Overlay) Update(ctx context.Context, tctx *Context, id string, contentPatch *string, metaPatch *memtypes.Metadata) (*memtypes.MemoryItem, error) {
	if err := o.authorize(tctx, "update"); err != nil {
		o.recordDenied(tctx, "update", id, err)
		if tctx == nil && o.cfg.RequireAuth {
			return nil, nil
		}
		return nil, err
	}

	item, _, ok := o.router.Retrieve(id)
	if !ok || !o.visible(tctx, item) {
		return nil, memtypes.ErrNotFound
	}

	updated, err := o.router.Update(ctx, id, contentPatch, metaPatch)
	if err != nil {
		o.record(tctx, "update", id, SeverityError, err.Error())
		return nil, err
	}
	o.record(tctx, "update", id, SeverityInfo, "")
	return updated, nil
}

// Delete removes id only if it is visible to tctx, returning whether
// anything was deleted.
func (o *Overlay) Delete(tctx *Context, id string) bool {
	if err := o.authorize(tctx, "delete"); err != nil {
		o.recordDenied(tctx, "delete", id, err)
		return false
	}

	item, _, ok := o.router.Retrieve(id)
	if !ok || !o.visible(tctx, item) {
		return false
	}

	deleted := o.router.Delete(id)
	if deleted {
		o.record(tctx, "delete", id, SeverityInfo, "")
	}
	return deleted
}

func (o *Overlay) visible(tctx *Context, item *memtypes.MemoryItem) bool {
	if item == nil {
		return false
	}
	if tctx == nil {
		return !o.cfg.RequireAuth
	}
	return item.Metadata.TenantID == tctx.TenantID
}

func (o *Overlay) record(tctx *Context, eventType, resource string, severity Severity, action string) {
	ev := o.audit.Record(tenantOf(tctx), userOf(tctx), eventType, severity, resource, action, nil)
	o.forward(ev)
}

func (o *Overlay) recordDenied(tctx *Context, eventType, resource string, err error) {
	ev := o.audit.Record(tenantOf(tctx), userOf(tctx), eventType, SeverityWarning, resource, "denied: "+err.Error(), nil)
	o.forward(ev)
}

func (o *Overlay) forward(ev Event) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Append(ev); err != nil {
		logging.GetLogger("tenant").Warn("durable audit sink append failed", "error", err)
	}
}
