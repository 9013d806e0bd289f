// Package engine wires the four memory layers, the router, the
// relationship engine, and the tenant overlay into one runnable unit from
// a pkg/config.Config, the way cmd/mycelicmemory's root.go wired the
// teacher's database/memory/search/relationships services.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cordlesssteve/layered-memory/internal/clock"
	"github.com/cordlesssteve/layered-memory/internal/embedding"
	"github.com/cordlesssteve/layered-memory/internal/layer"
	"github.com/cordlesssteve/layered-memory/internal/logging"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
	"github.com/cordlesssteve/layered-memory/internal/ratelimit"
	"github.com/cordlesssteve/layered-memory/internal/relationships"
	"github.com/cordlesssteve/layered-memory/internal/router"
	"github.com/cordlesssteve/layered-memory/internal/snapshot"
	"github.com/cordlesssteve/layered-memory/internal/tenant"
	"github.com/cordlesssteve/layered-memory/pkg/config"
)

// Engine bundles every runtime component the CLI and admin API need.
type Engine struct {
	Config        *config.Config
	Router        *router.Router
	Relationships *relationships.Engine
	Tenant        *tenant.Overlay
	Layers        map[memtypes.Layer]*layer.Layer

	log *logging.Logger
}

// New assembles an Engine from cfg. It does not start any background
// flush scheduling; callers drive Layer.Flush/Cleanup from their own
// runtime loop (spec.md §4.1.4).
func New(cfg *config.Config) (*Engine, error) {
	log := logging.GetLogger("engine")

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	clk := clock.Real()
	embedder := embedding.NewBackend(cfg.Embedding.Dimension, embedding.DeterministicFake(cfg.Embedding.Dimension))

	layers := make(map[memtypes.Layer]*layer.Layer, len(memtypes.AllLayers))
	for _, name := range memtypes.AllLayers {
		lc := layerConfig(cfg, name)
		snapPath := filepath.Join(cfg.LayerDir(string(name)), "snapshot.json")
		snap := snapshot.New(snapPath)

		policy := layer.Policy{
			Name:            name,
			MaxItems:        lc.MaxItems,
			MaxBytes:        lc.MaxBytes,
			TTL:             lc.TTL,
			FlushInterval:   lc.FlushInterval,
			HasVector:       name == memtypes.LayerGlobal,
			VectorDimension: cfg.Embedding.Dimension,
		}
		if name == memtypes.LayerTemporal {
			policy.HistoricalThreshold = 90 * 24 * time.Hour
		}

		var emb *embedding.Backend
		if policy.HasVector {
			emb = embedder
		}
		l := layer.New(policy, snap, clk, emb)
		l.Load(context.Background())
		layers[name] = l
	}

	routerCfg := router.Config{
		GlobalPriorityThreshold: cfg.Routing.GlobalThreshold,
		TemporalFallback:        cfg.Routing.TemporalFallback,
		MinResults:              cfg.Routing.MinResults,
		MaxResults:              cfg.Routing.MaxResults,
		Weights: router.Weights{
			Relevance: cfg.Routing.Weights.Relevance,
			Recency:   cfg.Routing.Weights.Recency,
			Frequency: cfg.Routing.Weights.Frequency,
			Priority:  cfg.Routing.Weights.Priority,
		},
		FanOutConcurrency: 4,
	}
	r := router.New(routerCfg, layers, clk.Now)

	relCfg := relationships.Config{
		MaxCandidates:   cfg.Relationships.MaxCandidates,
		MinConfidence:   cfg.Relationships.MinConfidence,
		BatchSize:       cfg.Relationships.BatchSize,
		MaxPerMemory:    cfg.Relationships.MaxPerMemory,
		CacheSize:       1000,
		ReviewThreshold: cfg.Relationships.ReviewThreshold,
	}
	relEngine := relationships.New(relCfg, clk, candidateProvider(r))
	if cfg.Relationships.Enabled {
		r.AddStoreHook(relEngine.OnStore)
		r.AddDeleteHook(relEngine.DropMemory)
	}

	rateCfg := ratelimit.DefaultConfig()
	tenantCfg := tenant.Config{
		RequireAuth:   cfg.Security.RequireAuth,
		AuditCapacity: cfg.Security.AuditRingSize,
		RateLimit:     rateCfg,
	}
	overlay := tenant.New(tenantCfg, r, clk)

	log.Info("engine initialized", "data_dir", cfg.DataDir)
	return &Engine{
		Config:        cfg,
		Router:        r,
		Relationships: relEngine,
		Tenant:        overlay,
		Layers:        layers,
		log:           log,
	}, nil
}

func candidateProvider(r *router.Router) relationships.CandidateProvider {
	return func(ctx context.Context, item *memtypes.MemoryItem) []*memtypes.MemoryItem {
		results := r.Search(ctx, item.Content, 20)
		candidates := make([]*memtypes.MemoryItem, 0, len(results))
		for _, res := range results {
			if res.Item.ID != item.ID {
				candidates = append(candidates, res.Item)
			}
		}
		return candidates
	}
}

func layerConfig(cfg *config.Config, name memtypes.Layer) config.LayerConfig {
	switch name {
	case memtypes.LayerSession:
		return cfg.Layers.Session
	case memtypes.LayerProject:
		return cfg.Layers.Project
	case memtypes.LayerGlobal:
		return cfg.Layers.Global
	case memtypes.LayerTemporal:
		return cfg.Layers.Temporal
	default:
		panic(fmt.Sprintf("unknown layer %q", name))
	}
}

// Close flushes every layer.
func (e *Engine) Close() error {
	for name, l := range e.Layers {
		if err := l.Close(); err != nil {
			return fmt.Errorf("closing layer %s: %w", name, err)
		}
	}
	return nil
}
