package relationships

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordlesssteve/layered-memory/internal/clock"
)

func chainEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(DefaultConfig(), clock.Real(), nil)
	now := time.Now()
	e.relationships["ab"] = &Relationship{ID: "ab", SourceID: "a", TargetID: "b", Type: TypeReference, Confidence: 0.9, CreatedAt: now}
	e.relationships["bc"] = &Relationship{ID: "bc", SourceID: "b", TargetID: "c", Type: TypeReference, Confidence: 0.9, CreatedAt: now}
	return e
}

func TestBuildGraphComputesDegreeAndCentrality(t *testing.T) {
	e := chainEngine(t)
	g := e.BuildGraph()

	require.Contains(t, g.Nodes, "b")
	assert.Equal(t, 2, g.Nodes["b"].Degree, "b is connected to both a and c")
	assert.Equal(t, 1, g.Nodes["a"].Degree)
	assert.Greater(t, g.Nodes["b"].Centrality, g.Nodes["a"].Centrality)
}

func TestCentralNodesOrdersByCentralityDescending(t *testing.T) {
	e := chainEngine(t)
	g := e.BuildGraph()

	top := g.CentralNodes(1)
	require.Len(t, top, 1)
	assert.Equal(t, "b", top[0].ID)
}
