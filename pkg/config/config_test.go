package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.Layers.Session.MaxItems)
	assert.Equal(t, int64(1<<20), cfg.Layers.Session.MaxBytes)
	assert.Equal(t, 1000, cfg.Layers.Project.MaxItems)
	assert.Equal(t, 50000, cfg.Layers.Global.MaxItems)
	assert.Equal(t, 50000, cfg.Layers.Temporal.MaxItems)

	assert.InDelta(t, 0.4, cfg.Routing.Weights.Relevance, 1e-9)
	assert.InDelta(t, 0.3, cfg.Routing.Weights.Recency, 1e-9)
	assert.InDelta(t, 0.2, cfg.Routing.Weights.Frequency, 1e-9)
	assert.InDelta(t, 0.1, cfg.Routing.Weights.Priority, 1e-9)

	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 5000, cfg.VectorIndex.NIVF)
}

func TestValidateRejectsBadLoggingLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layers.Session.MaxItems = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relationships.MinConfidence = 1.5
	assert.Error(t, cfg.Validate())
}

func TestLayerDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/memoryengine-test"
	assert.Equal(t, "/tmp/memoryengine-test/global", cfg.LayerDir("global"))
}
