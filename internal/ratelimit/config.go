package ratelimit

// Config holds rate limiting configuration for the engine API.
//
// Buckets are keyed by (operation, tenant_id, user_id) per the concurrency
// model in spec §5: each client gets its own per-operation allowance on top
// of one shared global ceiling.
type Config struct {
	Enabled    bool             `mapstructure:"enabled"`
	Global     LimitConfig      `mapstructure:"global"`
	Operations []OperationLimit `mapstructure:"operations"`
}

// LimitConfig defines rate limit parameters.
type LimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// OperationLimit defines a per-operation rate limit (e.g. "store", "search").
type OperationLimit struct {
	Name              string  `mapstructure:"name"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// DefaultConfig returns the default rate limiting configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Global: LimitConfig{
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Operations: []OperationLimit{
			{Name: "store", RequestsPerSecond: 30, BurstSize: 60},
			{Name: "search", RequestsPerSecond: 20, BurstSize: 40},
			{Name: "update", RequestsPerSecond: 20, BurstSize: 40},
			{Name: "delete", RequestsPerSecond: 20, BurstSize: 40},
			{Name: "relationships", RequestsPerSecond: 10, BurstSize: 20},
			{Name: "decay", RequestsPerSecond: 5, BurstSize: 10},
		},
	}
}

// GetOperationLimit returns the limit configuration for a specific operation.
// Returns nil if no specific limit is configured for it.
func (c *Config) GetOperationLimit(operation string) *OperationLimit {
	for _, op := range c.Operations {
		if op.Name == operation {
			return &op
		}
	}
	return nil
}
