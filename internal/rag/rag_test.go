package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yahya159/mobileApp/internal/model"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) ModelInfo() string { return "stub" }
func (s *stubEmbedder) Dimension() int    { return len(s.vec) }
func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}
func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

type stubSearcher struct {
	results []model.ScoredChunk
	err     error
	gotK    int
}

func (s *stubSearcher) Search(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	s.gotK = k
	return s.results, s.err
}

func TestRetrieveReturnsRankedChunks(t *testing.T) {
	searcher := &stubSearcher{results: []model.ScoredChunk{
		{Chunk: model.Chunk{ID: 2, Text: "b"}, Score: 0.9},
		{Chunk: model.Chunk{ID: 0, Text: "a"}, Score: 0.5},
	}}
	r := NewRetriever(&stubEmbedder{vec: []float32{1, 0}}, searcher)

	got, err := r.Retrieve(context.Background(), "question", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if searcher.gotK != 2 {
		t.Errorf("searcher got k=%d", searcher.gotK)
	}
	if len(got) != 2 || got[0].Chunk.ID != 2 {
		t.Errorf("unexpected results %+v", got)
	}
}

func TestRetrieveWrapsFailuresAsUnavailable(t *testing.T) {
	r := NewRetriever(&stubEmbedder{err: errors.New("backend down")}, &stubSearcher{})
	if _, err := r.Retrieve(context.Background(), "q", 3); !errors.Is(err, ErrUnavailable) {
		t.Errorf("embed failure: got %v, want ErrUnavailable", err)
	}

	r = NewRetriever(&stubEmbedder{vec: []float32{1}}, &stubSearcher{err: errors.New("no index")})
	if _, err := r.Retrieve(context.Background(), "q", 3); !errors.Is(err, ErrUnavailable) {
		t.Errorf("search failure: got %v, want ErrUnavailable", err)
	}
}

func TestAssemblePassthroughWithoutContext(t *testing.T) {
	a := NewAssembler("brochure", 1000)
	if got := a.Assemble("hello", nil); got != "hello" {
		t.Errorf("passthrough failed: %q", got)
	}
}

func TestAssembleIncludesRankedContext(t *testing.T) {
	a := NewAssembler("brochure", 0)
	prompt := a.Assemble("what programs exist?", []model.ScoredChunk{
		{Chunk: model.Chunk{ID: 1, Text: "engineering programs", Offset: 800}, Score: 0.9},
		{Chunk: model.Chunk{ID: 4, Text: "admission dates", Offset: 3200}, Score: 0.4},
	})

	if !strings.Contains(prompt, "engineering programs") || !strings.Contains(prompt, "admission dates") {
		t.Errorf("prompt missing chunk text:\n%s", prompt)
	}
	if strings.Index(prompt, "engineering programs") > strings.Index(prompt, "admission dates") {
		t.Errorf("context not in ranked order")
	}
	if !strings.Contains(prompt, "offset 800") {
		t.Errorf("prompt missing source attribution")
	}
	if !strings.Contains(prompt, "User Question: what programs exist?") {
		t.Errorf("prompt missing user question")
	}
}

func TestAssembleEvictsLowestRankedFirst(t *testing.T) {
	long := strings.Repeat("x", 400)
	ctxChunks := []model.ScoredChunk{
		{Chunk: model.Chunk{ID: 0, Text: long}, Score: 0.9},
		{Chunk: model.Chunk{ID: 1, Text: long}, Score: 0.8},
		{Chunk: model.Chunk{ID: 2, Text: long}, Score: 0.2},
	}

	a := NewAssembler("brochure", 1200)
	prompt := a.Assemble("q", ctxChunks)
	if strings.Contains(prompt, "[Context 3") {
		t.Errorf("lowest-ranked chunk was not evicted")
	}
	if !strings.Contains(prompt, "[Context 1") {
		t.Errorf("highest-ranked chunk was evicted")
	}
}

func TestAssembleNeverTruncatesMessage(t *testing.T) {
	message := strings.Repeat("important question ", 100)
	a := NewAssembler("brochure", 50) // budget smaller than the message itself
	prompt := a.Assemble(message, []model.ScoredChunk{
		{Chunk: model.Chunk{ID: 0, Text: "context"}, Score: 0.9},
	})
	if prompt != message {
		t.Errorf("message was altered when budget could not fit any context")
	}
}
