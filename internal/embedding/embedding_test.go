package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordlesssteve/layered-memory/internal/memtypes"
)

func TestDeterministicFakeIsStableAndUnitNorm(t *testing.T) {
	fn := DeterministicFake(8)
	a, err := fn(context.Background(), "hello world")
	require.NoError(t, err)
	b, err := fn(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var sumSq float64
	for _, x := range a {
		sumSq += x * x
	}
	assert.InDelta(t, 1.0, sumSq, 1e-6)
}

func TestDeterministicFakeVariesByText(t *testing.T) {
	fn := DeterministicFake(8)
	a, _ := fn(context.Background(), "hello")
	b, _ := fn(context.Background(), "goodbye")
	assert.NotEqual(t, a, b)
}

func TestBackendRejectsWrongDimensionFromFunc(t *testing.T) {
	backend := NewBackend(4, func(context.Context, string) ([]float64, error) {
		return []float64{1, 2}, nil
	})
	_, err := backend.Embed(context.Background(), "x")
	require.ErrorIs(t, err, memtypes.ErrEmbeddingUnavailable)
}

func TestBackendWrapsUnderlyingFailure(t *testing.T) {
	backend := NewBackend(4, func(context.Context, string) ([]float64, error) {
		return nil, errors.New("boom")
	})
	_, err := backend.Embed(context.Background(), "x")
	require.ErrorIs(t, err, memtypes.ErrEmbeddingUnavailable)
}

func TestBackendSucceedsWithMatchingDimension(t *testing.T) {
	backend := NewBackend(4, DeterministicFake(4))
	vec, err := backend.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}
