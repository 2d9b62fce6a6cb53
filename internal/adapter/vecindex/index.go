// Package vecindex holds ready embeddings in memory and answers
// nearest-neighbour queries by brute-force cosine similarity.
package vecindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"soup/internal/domain"
)

// Index is safe for concurrent use. Stores feed it on every committed write,
// so a Nearest call issued after a write returns observes that write.
type Index struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string][]float32
}

func New(dimension int) *Index {
	return &Index{
		dimension: dimension,
		vectors:   make(map[string][]float32),
	}
}

func (x *Index) Dimension() int {
	return x.dimension
}

// Put records a ready vector. Empty vectors are pending and only clear any
// previous entry.
func (x *Index) Put(id string, vec []float32) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(vec) == 0 {
		delete(x.vectors, id)
		return
	}
	x.vectors[id] = vec
}

func (x *Index) Delete(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.vectors, id)
}

func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.vectors = make(map[string][]float32)
}

// Len returns the number of ready vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Nearest finds the k nearest vectors to the query using cosine similarity.
func (x *Index) Nearest(ctx context.Context, query []float32, k int) ([]domain.Match, error) {
	if len(query) != x.dimension {
		return nil, domain.InvalidArgument("query dimension mismatch: expected %d, got %d", x.dimension, len(query))
	}
	if k <= 0 {
		return nil, domain.InvalidArgument("result limit must be positive, got %d", k)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	scores := make([]domain.Match, 0, len(x.vectors))
	for id, vec := range x.vectors {
		scores = append(scores, domain.Match{ID: id, Score: CosineSimilarity(query, vec)})
	}
	x.mu.RUnlock()

	// Sort by score descending; ids break ties so results are stable.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
