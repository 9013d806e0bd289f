// Package router implements admission (which layer a new item lands in),
// query analysis (which layers a search fans out to), and the merge/rank
// step that turns per-layer results into one ranked list (spec.md §4.4).
package router

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cordlesssteve/layered-memory/internal/layer"
	"github.com/cordlesssteve/layered-memory/internal/logging"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
)

// Weights are the composite-rank weights of spec.md §4.2.3.
type Weights struct {
	Relevance float64
	Recency   float64
	Frequency float64
	Priority  float64
}

// DefaultWeights mirrors the spec's documented defaults.
var DefaultWeights = Weights{Relevance: 0.4, Recency: 0.3, Frequency: 0.2, Priority: 0.1}

// Config tunes admission and fan-out (spec.md §4.4).
type Config struct {
	GlobalPriorityThreshold int // admission rule 2's priority cutoff, default 9
	TemporalFallback        bool
	MinResults              int // fallback triggers if the first pass returns fewer than this
	MaxResults              int // default 20
	Weights                 Weights
	FanOutConcurrency       int // default 4, one slot per layer
}

// DefaultConfig mirrors spec.md §4.4's documented defaults.
func DefaultConfig() Config {
	return Config{
		GlobalPriorityThreshold: 9,
		TemporalFallback:        true,
		MinResults:              3,
		MaxResults:              20,
		Weights:                 DefaultWeights,
		FanOutConcurrency:       4,
	}
}

// StoreHook is invoked after a successful store, e.g. by the relationship
// engine to detect edges against the newly admitted item (spec.md §4.5.1).
// Hooks never fail the store that triggered them (spec.md §7).
type StoreHook func(ctx context.Context, storedLayer memtypes.Layer, item *memtypes.MemoryItem)

// DeleteHook is invoked after a successful delete, e.g. by the relationship
// engine to drop edges touching the removed item (spec.md §3 "Relationships
// ... deleted when either endpoint is deleted"). Hooks never fail the
// delete that triggered them (spec.md §7).
type DeleteHook func(id string)

// Router fans a logical memory operation out across the four tiers.
type Router struct {
	cfg         Config
	layers      map[memtypes.Layer]*layer.Layer
	log         *logging.Logger
	clock       func() time.Time
	hooks       []StoreHook
	deleteHooks []DeleteHook
}

// New constructs a Router over the given layer set. layers must contain an
// entry for every memtypes.Layer the deployment enables; a missing tier is
// simply never selected by admission or query analysis.
func New(cfg Config, layers map[memtypes.Layer]*layer.Layer, now func() time.Time) *Router {
	if cfg.FanOutConcurrency <= 0 {
		cfg.FanOutConcurrency = 4
	}
	return &Router{cfg: cfg, layers: layers, log: logging.GetLogger("router"), clock: now}
}

// AddStoreHook registers a hook run (synchronously, but never fatally)
// after every successful Store.
func (r *Router) AddStoreHook(hook StoreHook) {
	r.hooks = append(r.hooks, hook)
}

// AddDeleteHook registers a hook run (synchronously, but never fatally)
// after every successful Delete.
func (r *Router) AddDeleteHook(hook DeleteHook) {
	r.deleteHooks = append(r.deleteHooks, hook)
}

// DetermineStorageLayer is the deterministic, pure admission function of
// spec.md §4.4.1: applied in order, first match wins.
func DetermineStorageLayer(meta memtypes.Metadata, globalPriorityThreshold int) memtypes.Layer {
	if meta.Category == "session" || meta.Category == "current-work" || meta.HasTag("temporary") {
		return memtypes.LayerSession
	}
	if meta.Priority >= globalPriorityThreshold ||
		meta.Category == "security" || meta.Category == "knowledge" || meta.Category == "design" ||
		meta.HasTag("reference") || meta.HasTag("important") {
		return memtypes.LayerGlobal
	}
	if meta.ProjectID != "" || meta.Category == "project-specific" {
		return memtypes.LayerProject
	}
	if meta.Category == "historical" || meta.Category == "pattern" || meta.HasTag("historical") {
		return memtypes.LayerTemporal
	}
	return memtypes.LayerProject
}

// Store admits content into the layer determine_storage_layer selects, then
// runs every registered StoreHook.
func (r *Router) Store(ctx context.Context, item *memtypes.MemoryItem) (*memtypes.MemoryItem, memtypes.Layer, error) {
	target := DetermineStorageLayer(item.Metadata, r.cfg.GlobalPriorityThreshold)
	l, ok := r.layers[target]
	if !ok {
		target = memtypes.LayerProject
		l = r.layers[target]
	}

	stored, err := l.Store(ctx, item)
	if err != nil {
		return nil, target, err
	}

	for _, hook := range r.hooks {
		hook(ctx, target, stored)
	}
	return stored, target, nil
}

// analyzeQuery returns the candidate layer set for queryText (spec.md
// §4.4.2), excluding the conditional temporal fallback (which depends on
// the first pass's result count and is applied by Search).
func analyzeQuery(queryText string) []memtypes.Layer {
	lower := strings.ToLower(queryText)
	tokenCount := len(strings.Fields(lower))

	if containsAny(lower, "current", "now", "todo") {
		return []memtypes.Layer{memtypes.LayerSession, memtypes.LayerProject, memtypes.LayerGlobal}
	}
	if containsAny(lower, "history", "pattern", "trend") {
		return []memtypes.Layer{memtypes.LayerSession, memtypes.LayerProject, memtypes.LayerGlobal, memtypes.LayerTemporal}
	}
	if tokenCount > 12 || containsAny(lower, "compare", "analyze", "explain", "why") {
		return []memtypes.Layer{memtypes.LayerSession, memtypes.LayerProject, memtypes.LayerGlobal, memtypes.LayerTemporal}
	}
	return []memtypes.Layer{memtypes.LayerSession, memtypes.LayerProject, memtypes.LayerGlobal}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Search fans the query out across the candidate layers concurrently,
// treats a failing layer as an empty result (spec.md §4.4.3), merges
// duplicates by item id keeping the highest single-layer score (ties
// broken by layer priority), re-ranks by the weighted composite of
// spec.md §4.2.3, and truncates to limit.
func (r *Router) Search(ctx context.Context, query string, limit int) []layer.Result {
	if limit <= 0 {
		limit = r.cfg.MaxResults
	}

	candidates := analyzeQuery(query)
	results := r.fanOut(ctx, candidates, query, limit)

	if r.cfg.TemporalFallback && !containsLayer(candidates, memtypes.LayerTemporal) && len(results) < r.cfg.MinResults {
		if l, ok := r.layers[memtypes.LayerTemporal]; ok {
			results = append(results, l.Search(ctx, query, limit)...)
		}
	}

	merged := r.merge(results)
	return r.rank(merged, limit)
}

func containsLayer(layers []memtypes.Layer, target memtypes.Layer) bool {
	for _, l := range layers {
		if l == target {
			return true
		}
	}
	return false
}

func (r *Router) fanOut(ctx context.Context, candidates []memtypes.Layer, query string, limit int) []layer.Result {
	var (
		mu  = make(chan struct{}, 1)
		all []layer.Result
	)
	mu <- struct{}{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.FanOutConcurrency)

	for _, name := range candidates {
		l, ok := r.layers[name]
		if !ok {
			continue
		}
		name, l := name, l
		g.Go(func() error {
			results := safeSearch(gctx, l, query, limit, r.log)
			<-mu
			all = append(all, results...)
			mu <- struct{}{}
			return nil
		})
	}
	_ = g.Wait() // per-layer failures are already recovered in safeSearch

	return all
}

// safeSearch recovers a panicking or failing layer search into an empty
// result set, so one bad layer never fails the whole fan-out (spec.md
// §4.4.3 "graceful degradation, not fatal").
func safeSearch(ctx context.Context, l *layer.Layer, query string, limit int, log *logging.Logger) (results []layer.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic recovered during layer search", "panic", rec)
			results = nil
		}
	}()
	return l.Search(ctx, query, limit)
}

func (r *Router) merge(results []layer.Result) []layer.Result {
	best := make(map[string]layer.Result, len(results))
	for _, res := range results {
		existing, ok := best[res.Item.ID]
		if !ok {
			best[res.Item.ID] = res
			continue
		}
		if res.Score > existing.Score ||
			(res.Score == existing.Score && memtypes.LayerPriority(res.SourceLayer) < memtypes.LayerPriority(existing.SourceLayer)) {
			best[res.Item.ID] = res
		}
	}

	out := make([]layer.Result, 0, len(best))
	for _, res := range best {
		out = append(out, res)
	}
	return out
}

func (r *Router) rank(results []layer.Result, limit int) []layer.Result {
	now := r.clock()
	w := r.cfg.Weights

	type scored struct {
		result layer.Result
		rank   float64
	}
	ranked := make([]scored, 0, len(results))
	for _, res := range results {
		ageHours := now.Sub(res.Item.CreatedAt).Hours()
		recency := math.Exp(-ageHours / 168)
		frequency := math.Min(float64(res.Item.AccessCount)/10, 1)
		priority := float64(res.Item.Metadata.Priority) / 10

		rank := w.Relevance*res.Score + w.Recency*recency + w.Frequency*frequency + w.Priority*priority
		ranked = append(ranked, scored{result: res, rank: rank})
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].rank > ranked[j].rank })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]layer.Result, len(ranked))
	for i, s := range ranked {
		out[i] = s.result
	}
	return out
}

// Retrieve looks up id across every layer (an id is unique across the
// whole engine, but the router doesn't track which layer owns which id
// without a search), returning the first hit and the layer it came from.
func (r *Router) Retrieve(id string) (*memtypes.MemoryItem, memtypes.Layer, bool) {
	for _, name := range memtypes.AllLayers {
		l, ok := r.layers[name]
		if !ok {
			continue
		}
		if item := l.Retrieve(id); item != nil {
			return item, name, true
		}
	}
	return nil, "", false
}

// Update finds id's owning layer and applies the patch.
func (r *Router) Update(ctx context.Context, id string, contentPatch *string, metaPatch *memtypes.Metadata) (*memtypes.MemoryItem, error) {
	for _, name := range memtypes.AllLayers {
		l, ok := r.layers[name]
		if !ok {
			continue
		}
		if l.Has(id) {
			return l.Update(ctx, id, contentPatch, metaPatch)
		}
	}
	return nil, memtypes.ErrNotFound
}

// Delete finds id's owning layer and removes it, then runs every
// registered DeleteHook.
func (r *Router) Delete(id string) bool {
	for _, name := range memtypes.AllLayers {
		l, ok := r.layers[name]
		if !ok {
			continue
		}
		if l.Delete(id) {
			for _, hook := range r.deleteHooks {
				hook(id)
			}
			return true
		}
	}
	return false
}

// Layers exposes the underlying per-tier layers, e.g. for cleanup/backup
// schedulers and the admin API's stats endpoint.
func (r *Router) Layers() map[memtypes.Layer]*layer.Layer { return r.layers }
