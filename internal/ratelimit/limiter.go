package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Key identifies the bucket a request draws from: one operation for one
// tenant/user pair. Matches the "token-bucket keyed by (operation, tenant_id,
// user_id)" requirement in spec §5.
type Key struct {
	Operation string
	TenantID  string
	UserID    string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Operation, k.TenantID, k.UserID)
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool          // Whether the request is allowed
	RetryAfter time.Duration // Suggested wait time if not allowed
	LimitType  string        // "global", "disabled", or the operation name
	Remaining  float64       // Remaining tokens in the relevant bucket
}

// Limiter manages rate limiting with one global bucket and per-(operation,
// tenant, user) buckets created lazily on first use.
type Limiter struct {
	mu            sync.Mutex
	enabled       bool
	globalBucket  *Bucket
	clientBuckets map[Key]*Bucket
	config        *Config
	metrics       *Metrics
}

// NewLimiter creates a new rate limiter from configuration.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Limiter{
		enabled:       cfg.Enabled,
		clientBuckets: make(map[Key]*Bucket),
		config:        cfg,
		metrics:       NewMetrics(),
	}

	l.globalBucket = NewBucket(
		float64(cfg.Global.BurstSize),
		cfg.Global.RequestsPerSecond,
	)

	return l
}

// Allow checks whether a request for (operation, tenantID, userID) is
// permitted. The global bucket is always consulted first; an operation with
// a configured limit also draws from its own per-client bucket.
func (l *Limiter) Allow(operation, tenantID, userID string) *LimitResult {
	if !l.isEnabled() {
		return &LimitResult{Allowed: true, LimitType: "disabled", Remaining: -1}
	}

	if !l.globalBucket.TryConsume(1) {
		retryAfter := l.globalBucket.TimeToWait(1)
		l.metrics.RecordRejection("global", operation)
		return &LimitResult{
			Allowed:    false,
			RetryAfter: retryAfter,
			LimitType:  "global",
			Remaining:  l.globalBucket.Tokens(),
		}
	}

	opLimit := l.config.GetOperationLimit(operation)
	if opLimit == nil {
		l.metrics.RecordAllowed(operation)
		return &LimitResult{Allowed: true, LimitType: "global", Remaining: l.globalBucket.Tokens()}
	}

	key := Key{Operation: operation, TenantID: tenantID, UserID: userID}
	bucket := l.clientBucket(key, opLimit)

	if !bucket.TryConsume(1) {
		retryAfter := bucket.TimeToWait(1)
		l.metrics.RecordRejection(operation, operation)
		return &LimitResult{
			Allowed:    false,
			RetryAfter: retryAfter,
			LimitType:  operation,
			Remaining:  bucket.Tokens(),
		}
	}

	l.metrics.RecordAllowed(operation)
	return &LimitResult{Allowed: true, LimitType: operation, Remaining: bucket.Tokens()}
}

func (l *Limiter) clientBucket(key Key, limit *OperationLimit) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.clientBuckets[key]; ok {
		return b
	}
	b := NewBucket(float64(limit.BurstSize), limit.RequestsPerSecond)
	l.clientBuckets[key] = b
	return b
}

func (l *Limiter) isEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// IsEnabled returns whether rate limiting is enabled.
func (l *Limiter) IsEnabled() bool {
	return l.isEnabled()
}

// SetEnabled enables or disables rate limiting.
func (l *Limiter) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// GetMetrics returns the current metrics.
func (l *Limiter) GetMetrics() *Metrics {
	return l.metrics
}

// GetGlobalBucket returns the global bucket (for testing).
func (l *Limiter) GetGlobalBucket() *Bucket {
	return l.globalBucket
}

// GetClientBucket returns the bucket for a specific key, or nil if it has
// never been touched (for testing).
func (l *Limiter) GetClientBucket(key Key) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clientBuckets[key]
}

// Reset resets all buckets to full capacity.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.globalBucket.Reset()
	for _, bucket := range l.clientBuckets {
		bucket.Reset()
	}
}

// Stats returns current limiter statistics.
type Stats struct {
	Enabled      bool               `json:"enabled"`
	GlobalTokens float64            `json:"global_tokens"`
	ClientTokens map[string]float64 `json:"client_tokens"`
}

// GetStats returns current limiter statistics.
func (l *Limiter) GetStats() *Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := &Stats{
		Enabled:      l.enabled,
		GlobalTokens: l.globalBucket.Tokens(),
		ClientTokens: make(map[string]float64),
	}

	for key, bucket := range l.clientBuckets {
		stats.ClientTokens[key.String()] = bucket.Tokens()
	}

	return stats
}
