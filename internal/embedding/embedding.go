// Package embedding wraps the external embedding backend the global layer
// calls to turn content into a dense vector. The engine never holds a
// layer lock across a call into it (spec.md §5), and treats it as
// "potentially slow, potentially failing": calls run through a
// sony/gobreaker circuit breaker so a degraded backend fails fast instead
// of stalling every store.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cordlesssteve/layered-memory/internal/memtypes"
)

// Func computes a dense embedding for text. Implementations must be safe
// for concurrent use; the global layer may call it from multiple store/
// search goroutines at once.
type Func func(ctx context.Context, text string) ([]float64, error)

// Backend wraps a Func with a circuit breaker so a failing external
// embedding service degrades the global layer's vector search rather than
// cascading into every caller's store/search latency.
type Backend struct {
	dimension int
	fn        Func
	cb        *gobreaker.CircuitBreaker
}

// NewBackend wraps fn with a circuit breaker named for logs/metrics.
func NewBackend(dimension int, fn Func) *Backend {
	settings := gobreaker.Settings{
		Name:        "embedding-backend",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}
	return &Backend{dimension: dimension, fn: fn, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Dimension returns the fixed vector dimension this backend produces.
func (b *Backend) Dimension() int { return b.dimension }

// Embed computes text's vector through the circuit breaker. A tripped
// breaker or backend failure surfaces as memtypes.ErrEmbeddingUnavailable,
// which callers treat as "run without the vector stream for this item".
func (b *Backend) Embed(ctx context.Context, text string) ([]float64, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.fn(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memtypes.ErrEmbeddingUnavailable, err)
	}
	vec := result.([]float64)
	if len(vec) != b.dimension {
		return nil, fmt.Errorf("%w: backend returned dimension %d, want %d", memtypes.ErrEmbeddingUnavailable, len(vec), b.dimension)
	}
	return vec, nil
}

// DeterministicFake returns a Func that hashes text into a unit vector of
// the given dimension. It never calls out to a network and never fails;
// it exists so the global layer's vector stream can be developed and
// tested without a real embedding service (spec.md §1 Non-goals: the
// embedding model itself is out of scope).
func DeterministicFake(dimension int) Func {
	return func(_ context.Context, text string) ([]float64, error) {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float64, dimension)
		for i := range vec {
			b := sum[i%len(sum)]
			// Spread each byte across [-1, 1] and fold in position so a
			// short hash still varies across all `dimension` components.
			vec[i] = (float64(b)/127.5 - 1) * math.Cos(float64(i))
		}
		normalize(vec)
		return vec, nil
	}
}

func normalize(v []float64) {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] /= norm
	}
}
