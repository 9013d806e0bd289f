package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete engine configuration: per-layer capacity
// and TTL policy, router weights, relationship thresholds, tenant security
// flags, embedding backend parameters and vector-index tuning knobs.
// Structure mirrors spec.md §6 "Environment / config".
type Config struct {
	Logging       LoggingConfig       `mapstructure:"logging"`
	DataDir       string              `mapstructure:"data_dir"`
	Layers        LayersConfig        `mapstructure:"layers"`
	Routing       RoutingConfig       `mapstructure:"routing"`
	Relationships RelationshipsConfig `mapstructure:"relationships"`
	Security      SecurityConfig      `mapstructure:"security"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	VectorIndex   VectorIndexConfig  `mapstructure:"vector_index"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// LayerConfig is the per-layer capacity/TTL/indexing policy (spec §3, §6).
type LayerConfig struct {
	MaxItems      int           `mapstructure:"max_items"`
	MaxBytes      int64         `mapstructure:"max_bytes"`
	TTL           time.Duration `mapstructure:"ttl_ms"`
	CompressionOn bool          `mapstructure:"compression_on"`
	IndexingOn    bool          `mapstructure:"indexing_on"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LayersConfig holds the four tiers' configuration.
type LayersConfig struct {
	Session  LayerConfig `mapstructure:"session"`
	Project  LayerConfig `mapstructure:"project"`
	Global   LayerConfig `mapstructure:"global"`
	Temporal LayerConfig `mapstructure:"temporal"`
}

// RoutingWeights are the composite-rank weights used in §4.2.3.
type RoutingWeights struct {
	Relevance float64 `mapstructure:"relevance"`
	Recency   float64 `mapstructure:"recency"`
	Frequency float64 `mapstructure:"frequency"`
	Priority  float64 `mapstructure:"priority"`
}

// RoutingConfig holds router admission/search tuning (spec §4.4).
type RoutingConfig struct {
	SessionThreshold int            `mapstructure:"session_threshold"`
	ProjectThreshold int            `mapstructure:"project_threshold"`
	GlobalThreshold  int            `mapstructure:"global_threshold"`
	TemporalFallback bool           `mapstructure:"temporal_fallback"`
	MinResults       int            `mapstructure:"min_results"`
	MaxResults       int            `mapstructure:"max_results"`
	Weights          RoutingWeights `mapstructure:"weights"`
}

// RelationshipsConfig holds relationship-engine tuning (spec §4.5).
type RelationshipsConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	MinConfidence   float64 `mapstructure:"min_confidence"`
	BatchSize       int     `mapstructure:"batch_size"`
	MaxPerMemory    int     `mapstructure:"max_per_memory"`
	MaxCandidates   int     `mapstructure:"max_candidates"`
	ReviewThreshold float64 `mapstructure:"review_threshold"`
}

// SecurityConfig holds tenant overlay flags (spec §4.7).
type SecurityConfig struct {
	TenantIsolation bool   `mapstructure:"tenant_isolation"`
	AccessControl   bool   `mapstructure:"access_control"`
	AuditLogging    bool   `mapstructure:"audit_logging"`
	DefaultTenant   string `mapstructure:"default_tenant"`
	RequireAuth     bool   `mapstructure:"require_auth"`
	AuditRingSize   int    `mapstructure:"audit_ring_size"`
}

// EmbeddingConfig describes the external embedding backend (out of scope
// per spec.md §1; this is only the shape the engine expects from it).
type EmbeddingConfig struct {
	ModelID   string `mapstructure:"model_id"`
	Dimension int    `mapstructure:"dimension"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// VectorIndexConfig holds exact/IVF tuning (spec §4.3).
type VectorIndexConfig struct {
	NIVF   int `mapstructure:"n_ivf"`
	NList  int `mapstructure:"nlist"`
	NProbe int `mapstructure:"nprobe"`
}

// DefaultConfig returns configuration with the spec's documented defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".memoryengine")

	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		DataDir: dataDir,
		Layers: LayersConfig{
			Session: LayerConfig{
				MaxItems: 50, MaxBytes: 1 << 20, TTL: 0,
				IndexingOn: true,
			},
			Project: LayerConfig{
				MaxItems: 1000, MaxBytes: 10 << 20, TTL: 30 * 24 * time.Hour,
				IndexingOn: true, FlushInterval: 5 * time.Minute,
			},
			Global: LayerConfig{
				MaxItems: 50000, MaxBytes: 500 << 20, TTL: 365 * 24 * time.Hour,
				IndexingOn: true, FlushInterval: 10 * time.Minute,
			},
			Temporal: LayerConfig{
				MaxItems: 50000, MaxBytes: 500 << 20, TTL: 0,
				IndexingOn: true, FlushInterval: 10 * time.Minute,
			},
		},
		Routing: RoutingConfig{
			SessionThreshold: 9,
			ProjectThreshold: 9,
			GlobalThreshold:  9,
			TemporalFallback: true,
			MinResults:       3,
			MaxResults:       20,
			Weights: RoutingWeights{
				Relevance: 0.4,
				Recency:   0.3,
				Frequency: 0.2,
				Priority:  0.1,
			},
		},
		Relationships: RelationshipsConfig{
			Enabled:         true,
			MinConfidence:   0.6,
			BatchSize:       50,
			MaxPerMemory:    10,
			MaxCandidates:   100,
			ReviewThreshold: 0.4,
		},
		Security: SecurityConfig{
			TenantIsolation: true,
			AccessControl:   true,
			AuditLogging:    true,
			DefaultTenant:   "default",
			RequireAuth:     false,
			AuditRingSize:   1000,
		},
		Embedding: EmbeddingConfig{
			ModelID:   "deterministic-fake",
			Dimension: 768,
			MaxTokens: 8192,
		},
		VectorIndex: VectorIndexConfig{
			NIVF:   5000,
			NList:  200,
			NProbe: 20,
		},
	}
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches in multiple locations:
//  1. ./config.yaml (current directory)
//  2. ~/.memoryengine/config.yaml (user home)
//  3. /etc/memoryengine/config.yaml (system-wide)
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".memoryengine"))
	v.AddConfigPath("/etc/memoryengine")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("data_dir", d.DataDir)

	v.SetDefault("layers.session.max_items", d.Layers.Session.MaxItems)
	v.SetDefault("layers.session.max_bytes", d.Layers.Session.MaxBytes)
	v.SetDefault("layers.project.max_items", d.Layers.Project.MaxItems)
	v.SetDefault("layers.project.max_bytes", d.Layers.Project.MaxBytes)
	v.SetDefault("layers.project.ttl_ms", d.Layers.Project.TTL)
	v.SetDefault("layers.global.max_items", d.Layers.Global.MaxItems)
	v.SetDefault("layers.global.max_bytes", d.Layers.Global.MaxBytes)
	v.SetDefault("layers.global.ttl_ms", d.Layers.Global.TTL)
	v.SetDefault("layers.temporal.max_items", d.Layers.Temporal.MaxItems)
	v.SetDefault("layers.temporal.max_bytes", d.Layers.Temporal.MaxBytes)

	v.SetDefault("routing.max_results", d.Routing.MaxResults)
	v.SetDefault("routing.min_results", d.Routing.MinResults)
	v.SetDefault("routing.temporal_fallback", d.Routing.TemporalFallback)
	v.SetDefault("routing.weights.relevance", d.Routing.Weights.Relevance)
	v.SetDefault("routing.weights.recency", d.Routing.Weights.Recency)
	v.SetDefault("routing.weights.frequency", d.Routing.Weights.Frequency)
	v.SetDefault("routing.weights.priority", d.Routing.Weights.Priority)

	v.SetDefault("relationships.enabled", d.Relationships.Enabled)
	v.SetDefault("relationships.min_confidence", d.Relationships.MinConfidence)
	v.SetDefault("relationships.batch_size", d.Relationships.BatchSize)
	v.SetDefault("relationships.max_per_memory", d.Relationships.MaxPerMemory)
	v.SetDefault("relationships.max_candidates", d.Relationships.MaxCandidates)
	v.SetDefault("relationships.review_threshold", d.Relationships.ReviewThreshold)

	v.SetDefault("security.tenant_isolation", d.Security.TenantIsolation)
	v.SetDefault("security.access_control", d.Security.AccessControl)
	v.SetDefault("security.audit_logging", d.Security.AuditLogging)
	v.SetDefault("security.default_tenant", d.Security.DefaultTenant)
	v.SetDefault("security.require_auth", d.Security.RequireAuth)
	v.SetDefault("security.audit_ring_size", d.Security.AuditRingSize)

	v.SetDefault("embedding.model_id", d.Embedding.ModelID)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.max_tokens", d.Embedding.MaxTokens)

	v.SetDefault("vector_index.n_ivf", d.VectorIndex.NIVF)
	v.SetDefault("vector_index.nlist", d.VectorIndex.NList)
	v.SetDefault("vector_index.nprobe", d.VectorIndex.NProbe)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	for name, l := range map[string]LayerConfig{
		"session": c.Layers.Session, "project": c.Layers.Project,
		"global": c.Layers.Global, "temporal": c.Layers.Temporal,
	} {
		if l.MaxItems <= 0 {
			return fmt.Errorf("layers.%s.max_items must be > 0", name)
		}
		if l.MaxBytes <= 0 {
			return fmt.Errorf("layers.%s.max_bytes must be > 0", name)
		}
	}

	if c.Routing.MaxResults <= 0 {
		return fmt.Errorf("routing.max_results must be > 0")
	}
	w := c.Routing.Weights
	if w.Relevance < 0 || w.Recency < 0 || w.Frequency < 0 || w.Priority < 0 {
		return fmt.Errorf("routing.weights must be non-negative")
	}

	if c.Relationships.MinConfidence < 0 || c.Relationships.MinConfidence > 1 {
		return fmt.Errorf("relationships.min_confidence must be between 0 and 1")
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be > 0")
	}

	if c.VectorIndex.NIVF <= 0 || c.VectorIndex.NList <= 0 || c.VectorIndex.NProbe <= 0 {
		return fmt.Errorf("vector_index.n_ivf, nlist and nprobe must be > 0")
	}

	return nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// LayerDir returns the directory a given layer should persist to.
func (c *Config) LayerDir(layer string) string {
	return filepath.Join(c.DataDir, layer)
}
