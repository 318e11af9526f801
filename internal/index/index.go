package index

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/yahya159/mobileApp/internal/model"
)

var (
	// ErrNotReady means no index has been built or loaded yet. Queries fail
	// fast instead of returning partial results.
	ErrNotReady = errors.New("vector index not ready")

	// ErrBuildInProgress means a rebuild is already running; only one build
	// may be in flight at a time.
	ErrBuildInProgress = errors.New("index build already in progress")

	// ErrCorrupt means a persisted index/chunk pair is inconsistent.
	ErrCorrupt = errors.New("corrupt index artifact")

	// ErrDimensionMismatch means vectors of inconsistent dimensions were
	// supplied to a build or query.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidTopK means a query asked for a non-positive result count.
	ErrInvalidTopK = errors.New("top-k must be positive")
)

// Hit is one nearest-neighbor result.
type Hit struct {
	ChunkID int
	Score   float64
}

// Index is an immutable in-memory vector index over document chunks.
// Similarity is cosine: vectors are L2-normalized at build and query time,
// so the score is a plain dot product. Once built an Index is never
// mutated; a rebuild produces a fresh Index that replaces the old one.
type Index struct {
	dimension int
	chunks    []model.Chunk
	vectors   [][]float32
	byID      map[int]model.Chunk
}

// Build constructs a ready, queryable index from parallel chunk and vector
// slices. Vectors are normalized in place into an internal copy.
func Build(chunks []model.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrCorrupt, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrCorrupt)
	}

	dim := len(vectors[0])
	normalized := make([][]float32, len(vectors))
	byID := make(map[int]model.Chunk, len(chunks))
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(vec), dim)
		}
		normalized[i] = normalize(vec)
		byID[chunks[i].ID] = chunks[i]
	}
	if len(byID) != len(chunks) {
		return nil, fmt.Errorf("%w: duplicate chunk ids", ErrCorrupt)
	}

	return &Index{
		dimension: dim,
		chunks:    append([]model.Chunk(nil), chunks...),
		vectors:   normalized,
		byID:      byID,
	}, nil
}

// Query returns up to k nearest neighbors sorted by descending score, ties
// broken by ascending chunk id so that identical queries against the same
// index always rank identically.
func (x *Index) Query(vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidTopK
	}
	if len(vec) != x.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(vec), x.dimension)
	}

	q := normalize(vec)
	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = Hit{ChunkID: x.chunks[i].ID, Score: dot(q, v)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Chunk resolves a chunk id to its body.
func (x *Index) Chunk(id int) (model.Chunk, bool) {
	ch, ok := x.byID[id]
	return ch, ok
}

// Len reports the number of indexed chunks.
func (x *Index) Len() int { return len(x.chunks) }

// Dimension reports the vector dimension fixed at build time.
func (x *Index) Dimension() int { return x.dimension }

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
