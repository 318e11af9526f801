package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/yahya159/mobileApp/internal/embed"
	"github.com/yahya159/mobileApp/internal/model"
)

// ErrUnavailable means retrieval could not run (index absent, embedding
// backend down). The gateway degrades to plain generation instead of
// failing the chat.
var ErrUnavailable = errors.New("retrieval unavailable")

// Searcher answers nearest-neighbor queries over the indexed corpus.
// Implemented by the in-memory index manager and the pgvector store.
type Searcher interface {
	Search(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error)
}

// Retriever embeds a query and looks up the most similar chunks.
type Retriever struct {
	embedder embed.Embedder
	source   Searcher
}

func NewRetriever(embedder embed.Embedder, source Searcher) *Retriever {
	return &Retriever{embedder: embedder, source: source}
}

// Retrieve returns up to k chunks ranked by descending similarity. Any
// failure is wrapped in ErrUnavailable so callers can fall back uniformly.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]model.ScoredChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}
	results, err := r.source.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return results, nil
}
