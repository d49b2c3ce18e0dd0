// Package index implements an exact inner-product nearest-neighbor
// index over unit-norm vectors. With L2-normalized inputs the dot
// product equals cosine similarity, so a flat scan gives exact
// neighbors; at the corpus sizes the pipeline handles (tens of
// thousands of articles in the clustering window) a scan outperforms
// the bookkeeping of an approximate structure.
package index

import (
	"fmt"
	"sort"
	"sync"
)

// Neighbor is one search hit. Searching a vector that is already in
// the index returns the vector itself as its own neighbor.
type Neighbor struct {
	ID    int
	Score float32
}

// Flat is an exact index keyed by id. Safe for concurrent use.
type Flat struct {
	mu   sync.RWMutex
	dim  int
	ids  []int
	vecs [][]float32
	pos  map[int]int
}

func NewFlat(dim int) *Flat {
	return &Flat{dim: dim, pos: map[int]int{}}
}

// Add indexes one vector under the given id. Re-adding an id replaces
// its vector, so a document retried after a failed attach does not
// inflate the index.
func (f *Flat) Add(id int, vector []float32) error {
	if len(vector) != f.dim {
		return fmt.Errorf("vector dim %d, want %d", len(vector), f.dim)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if i, ok := f.pos[id]; ok {
		f.vecs[i] = vector

		return nil
	}

	f.pos[id] = len(f.ids)
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, vector)

	return nil
}

// AddBatch indexes vectors in order; ids and vectors must be parallel.
func (f *Flat) AddBatch(ids []int, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	for i := range ids {
		if err := f.Add(ids[i], vectors[i]); err != nil {
			return err
		}
	}

	return nil
}

// Search returns up to k neighbors by descending dot product.
func (f *Flat) Search(vector []float32, k int) ([]Neighbor, error) {
	if len(vector) != f.dim {
		return nil, fmt.Errorf("query dim %d, want %d", len(vector), f.dim)
	}

	if k <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	neighbors := make([]Neighbor, 0, len(f.ids))

	for i, id := range f.ids {
		neighbors = append(neighbors, Neighbor{ID: id, Score: dot(vector, f.vecs[i])})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Score > neighbors[j].Score
	})

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	return neighbors, nil
}

// Size returns the number of indexed vectors.
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.ids)
}

// Dim returns the vector dimension the index was built for.
func (f *Flat) Dim() int { return f.dim }

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}

	return sum
}
