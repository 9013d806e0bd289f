package relationships

import "sort"

// Node is one memory's position in the knowledge graph (spec.md §4.5.3).
type Node struct {
	ID                  string
	Degree              int
	ClusteringCoefficient float64
	Centrality          float64 // normalized degree
}

// Graph is built on demand from a snapshot of the relationship map
// (spec.md §4.5.3).
type Graph struct {
	Nodes map[string]*Node
	Edges []*Relationship
}

// BuildGraph computes one node per memory id touched by any relationship,
// with degree, clustering coefficient, and normalized-degree centrality.
func (e *Engine) BuildGraph() *Graph {
	edges := e.All()

	adjacency := make(map[string]map[string]struct{})
	addEdge := func(a, b string) {
		if adjacency[a] == nil {
			adjacency[a] = make(map[string]struct{})
		}
		adjacency[a][b] = struct{}{}
	}
	for _, r := range edges {
		addEdge(r.SourceID, r.TargetID)
		addEdge(r.TargetID, r.SourceID)
	}

	nodeCount := len(adjacency)
	nodes := make(map[string]*Node, nodeCount)
	for id, neighbors := range adjacency {
		degree := len(neighbors)
		nodes[id] = &Node{
			ID:                    id,
			Degree:                degree,
			ClusteringCoefficient: clusteringCoefficient(neighbors, adjacency),
			Centrality:            normalizedDegree(degree, nodeCount),
		}
	}

	return &Graph{Nodes: nodes, Edges: edges}
}

func normalizedDegree(degree, nodeCount int) float64 {
	if nodeCount <= 1 {
		return 0
	}
	return float64(degree) / float64(nodeCount-1)
}

// clusteringCoefficient is the fraction of a node's neighbor pairs that are
// themselves connected.
func clusteringCoefficient(neighbors map[string]struct{}, adjacency map[string]map[string]struct{}) float64 {
	if len(neighbors) < 2 {
		return 0
	}
	ids := make([]string, 0, len(neighbors))
	for id := range neighbors {
		ids = append(ids, id)
	}

	possible := len(ids) * (len(ids) - 1) / 2
	connected := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if _, ok := adjacency[ids[i]][ids[j]]; ok {
				connected++
			}
		}
	}
	return float64(connected) / float64(possible)
}

// CentralNodes returns the top-k nodes by centrality (spec.md §4.5.3).
func (g *Graph) CentralNodes(k int) []*Node {
	out := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Centrality > out[j].Centrality })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
