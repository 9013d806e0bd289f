// Package vectorindex implements the dense-embedding index used by the
// global layer: an exact brute-force cosine index that transitions to an
// IVF coarse-quantized index once it grows past a size threshold
// (spec.md §4.3). The IVF structure (centroids, inverted lists, k-means
// training) is adapted from liliang-cn/sqvect's pkg/index/ivf.go, switched
// from Euclidean to cosine distance to match spec.md §4.2.2/§4.3.
package vectorindex

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// State is the index's current search strategy.
type State string

const (
	StateExact       State = "exact"
	StateApproximate State = "approximate"
)

// Config tunes the exact->IVF transition (spec.md §4.3 defaults).
type Config struct {
	Dimension int
	NIVF      int // transition threshold, default 5000
	NList     int // centroid count, default 200
	NProbe    int // centroids probed per search, default 20
}

// DefaultConfig returns the spec's documented defaults for a given dimension.
func DefaultConfig(dimension int) Config {
	return Config{Dimension: dimension, NIVF: 5000, NList: 200, NProbe: 20}
}

// Result is one scored hit from Search.
type Result struct {
	ID    string
	Score float64 // cosine similarity, higher is closer
}

// Index is a thread-safe dense vector index with one id per vector
// (re-adding an id replaces its vector, spec.md §4.3 invariant).
type Index struct {
	mu     sync.RWMutex
	cfg    Config
	state  State
	ids    []string
	vecs   [][]float64
	posOf  map[string]int // id -> index into ids/vecs, for O(1) replace/remove
	tomb   map[string]bool

	// IVF structures, populated only once trained.
	centroids  [][]float64
	invlists   [][]int // centroid index -> list of positions into ids/vecs
	nprobe     int
}

// New creates an empty index in the Exact state.
func New(cfg Config) *Index {
	if cfg.NIVF <= 0 {
		cfg.NIVF = 5000
	}
	if cfg.NList <= 0 {
		cfg.NList = 200
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = 20
	}
	return &Index{
		cfg:   cfg,
		state: StateExact,
		posOf: make(map[string]int),
		tomb:  make(map[string]bool),
	}
}

// State returns the index's current state.
func (idx *Index) State() State {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.state
}

// Len returns the number of live (non-tombstoned) vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.posOf)
}

// Upsert adds vector under id, or replaces it if id already exists.
func (idx *Index) Upsert(id string, vector []float64) error {
	if len(vector) != idx.cfg.Dimension {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vector), idx.cfg.Dimension)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if pos, exists := idx.posOf[id]; exists {
		idx.vecs[pos] = vector
		delete(idx.tomb, id)
	} else {
		pos := len(idx.ids)
		idx.ids = append(idx.ids, id)
		idx.vecs = append(idx.vecs, vector)
		idx.posOf[id] = pos
	}

	if idx.state == StateExact && len(idx.posOf) >= idx.cfg.NIVF {
		idx.trainLocked()
	} else if idx.state == StateApproximate {
		idx.assignLocked(id)
	}
	return nil
}

// Remove tombstones id; it is physically compacted at the next Optimize.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.posOf[id]; !exists {
		return
	}
	idx.tomb[id] = true
	delete(idx.posOf, id)
}

// Has reports whether id has a live (non-tombstoned) vector.
func (idx *Index) Has(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.posOf[id]
	return ok
}

// Optimize compacts tombstoned vectors. If still in Exact state and past
// the IVF threshold, it also trains the coarse quantizer.
func (idx *Index) Optimize() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.compactLocked()
	if idx.state == StateExact && len(idx.posOf) >= idx.cfg.NIVF {
		idx.trainLocked()
	} else if idx.state == StateApproximate {
		idx.rebuildInvlistsLocked()
	}
}

func (idx *Index) compactLocked() {
	if len(idx.tomb) == 0 {
		return
	}
	newIDs := make([]string, 0, len(idx.posOf))
	newVecs := make([][]float64, 0, len(idx.posOf))
	newPos := make(map[string]int, len(idx.posOf))
	for id, pos := range idx.posOf {
		newPos[id] = len(newIDs)
		newIDs = append(newIDs, id)
		newVecs = append(newVecs, idx.vecs[pos])
	}
	idx.ids = newIDs
	idx.vecs = newVecs
	idx.posOf = newPos
	idx.tomb = make(map[string]bool)
	if idx.state == StateApproximate {
		idx.rebuildInvlistsLocked()
	}
}

// Search returns up to k nearest neighbors by cosine similarity.
func (idx *Index) Search(query []float64, k int) ([]Result, error) {
	if len(query) != idx.cfg.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), idx.cfg.Dimension)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	switch idx.state {
	case StateExact:
		return idx.searchExactLocked(query, k), nil
	default:
		return idx.searchIVFLocked(query, k), nil
	}
}

func (idx *Index) searchExactLocked(query []float64, k int) []Result {
	results := make([]Result, 0, len(idx.posOf))
	for id, pos := range idx.posOf {
		results = append(results, Result{ID: id, Score: cosine(query, idx.vecs[pos])})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func (idx *Index) searchIVFLocked(query []float64, k int) []Result {
	type cd struct {
		centroid int
		dist     float64
	}
	dists := make([]cd, len(idx.centroids))
	for i, c := range idx.centroids {
		dists[i] = cd{i, cosine(query, c)}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist > dists[j].dist })

	nprobe := idx.nprobe
	if nprobe > len(dists) {
		nprobe = len(dists)
	}

	results := make([]Result, 0)
	for i := 0; i < nprobe; i++ {
		for _, pos := range idx.invlists[dists[i].centroid] {
			id := idx.ids[pos]
			if idx.tomb[id] {
				continue
			}
			results = append(results, Result{ID: id, Score: cosine(query, idx.vecs[pos])})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// trainLocked runs k-means over the current vectors and transitions to
// Approximate. Caller must hold idx.mu.
func (idx *Index) trainLocked() {
	vectors := make([][]float64, 0, len(idx.posOf))
	for _, pos := range idx.posOf {
		vectors = append(vectors, idx.vecs[pos])
	}
	nlist := idx.cfg.NList
	if nlist > len(vectors) {
		nlist = len(vectors)
	}
	if nlist == 0 {
		return
	}

	idx.centroids = kMeans(vectors, nlist, 20)
	idx.nprobe = idx.cfg.NProbe
	if idx.nprobe > nlist {
		idx.nprobe = nlist
	}
	idx.state = StateApproximate
	idx.rebuildInvlistsLocked()
}

func (idx *Index) rebuildInvlistsLocked() {
	idx.invlists = make([][]int, len(idx.centroids))
	for id, pos := range idx.posOf {
		c := idx.nearestCentroidLocked(idx.vecs[pos])
		idx.invlists[c] = append(idx.invlists[c], pos)
		_ = id
	}
}

func (idx *Index) assignLocked(id string) {
	pos, ok := idx.posOf[id]
	if !ok {
		return
	}
	idx.rebuildInvlistsLocked()
	_ = pos
}

func (idx *Index) nearestCentroidLocked(v []float64) int {
	best, bestDist := 0, -2.0
	for i, c := range idx.centroids {
		d := cosine(v, c)
		if d > bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// kMeans runs Lloyd's algorithm for `iters` iterations over `k` clusters.
func kMeans(vectors [][]float64, k, iters int) [][]float64 {
	dim := len(vectors[0])
	rng := rand.New(rand.NewSource(42)) // deterministic training for reproducible snapshots
	centroids := make([][]float64, k)
	perm := rng.Perm(len(vectors))
	for i := 0; i < k; i++ {
		centroids[i] = append([]float64(nil), vectors[perm[i%len(perm)]]...)
	}

	assign := make([]int, len(vectors))
	for iter := 0; iter < iters; iter++ {
		for i, v := range vectors {
			best, bestDist := 0, -2.0
			for c, centroid := range centroids {
				d := cosine(v, centroid)
				if d > bestDist {
					bestDist = d
					best = c
				}
			}
			assign[i] = best
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for d := 0; d < dim; d++ {
				sums[c][d] += v[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				sums[c][d] /= float64(counts[c])
			}
			centroids[c] = sums[c]
		}
	}
	return centroids
}

// Snapshot is the serializable representation of the index for persistence
// (spec.md §4.3 "Save/load must round-trip state, centroids, and
// assignments").
type Snapshot struct {
	Dimension int         `json:"dimension"`
	State     State       `json:"state"`
	IDs       []string    `json:"ids"`
	Vectors   [][]float64 `json:"vectors"`
	Centroids [][]float64 `json:"centroids,omitempty"`
	NProbe    int         `json:"nprobe,omitempty"`
}

// ToSnapshot captures the index's full state.
func (idx *Index) ToSnapshot() Snapshot {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.compactLocked()

	snap := Snapshot{
		Dimension: idx.cfg.Dimension,
		State:     idx.state,
		IDs:       append([]string(nil), idx.ids...),
		Vectors:   append([][]float64(nil), idx.vecs...),
		NProbe:    idx.nprobe,
	}
	if idx.state == StateApproximate {
		snap.Centroids = append([][]float64(nil), idx.centroids...)
	}
	return snap
}

// FromSnapshot rebuilds an index from a prior ToSnapshot. The dimension in
// the snapshot must match cfg.Dimension (spec.md §9: "refuse to load a
// mismatch rather than silently re-project").
func FromSnapshot(cfg Config, snap Snapshot) (*Index, error) {
	if snap.Dimension != cfg.Dimension {
		return nil, fmt.Errorf("snapshot dimension %d does not match configured dimension %d", snap.Dimension, cfg.Dimension)
	}
	idx := New(cfg)
	for i, id := range snap.IDs {
		idx.posOf[id] = i
	}
	idx.ids = append([]string(nil), snap.IDs...)
	idx.vecs = append([][]float64(nil), snap.Vectors...)

	if snap.State == StateApproximate && len(snap.Centroids) > 0 {
		idx.centroids = append([][]float64(nil), snap.Centroids...)
		idx.nprobe = snap.NProbe
		idx.state = StateApproximate
		idx.rebuildInvlistsLocked()
	}
	return idx, nil
}
