package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yahya159/mobileApp/internal/model"
	"github.com/yahya159/mobileApp/internal/rag"
)

type scriptedGenerator struct {
	mu        sync.Mutex
	events    []model.StreamEvent
	startErr  error
	canceled  bool
	gotPrompt string
}

func (g *scriptedGenerator) Stream(ctx context.Context, prompt string, s model.Sampling) (<-chan model.StreamEvent, error) {
	g.mu.Lock()
	g.gotPrompt = prompt
	g.mu.Unlock()
	if g.startErr != nil {
		return nil, g.startErr
	}
	out := make(chan model.StreamEvent)
	go func() {
		defer close(out)
		for _, ev := range g.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				g.mu.Lock()
				g.canceled = true
				g.mu.Unlock()
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}()
	return out, nil
}

func (g *scriptedGenerator) prompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gotPrompt
}

func (g *scriptedGenerator) wasCanceled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canceled
}

type unavailableSearcher struct{}

func (unavailableSearcher) Search(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	return nil, errors.New("index not ready")
}

type fixedSearcher struct{ results []model.ScoredChunk }

func (f fixedSearcher) Search(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) ModelInfo() string { return "fixed" }
func (fixedEmbedder) Dimension() int    { return 2 }
func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func defaultedRequest(ragEnabled bool) model.ChatRequest {
	req := model.ChatRequest{Message: "what is the tuition?", RAGEnabled: ragEnabled}
	req.ApplyDefaults(model.SamplingDefaults{Temperature: 0.7, MaxTokens: 128, TopK: 40, TopP: 0.9, RAGTopK: 3})
	return req
}

func newService(gen Generator, searcher rag.Searcher) *ChatService {
	retriever := rag.NewRetriever(fixedEmbedder{}, searcher)
	assembler := rag.NewAssembler("brochure", 0)
	return NewChatService(retriever, assembler, gen, NewPool(1, 4), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRespondForwardsEventsInOrder(t *testing.T) {
	gen := &scriptedGenerator{events: []model.StreamEvent{
		model.Delta("Hel"), model.Delta("lo"), model.DoneEvent(),
	}}
	svc := newService(gen, fixedSearcher{})

	var got []model.StreamEvent
	err := svc.Respond(context.Background(), "req-1", defaultedRequest(false), func(ev model.StreamEvent) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(got) != 3 || got[0].Content != "Hel" || got[1].Content != "lo" || !got[2].Done {
		t.Errorf("unexpected events %+v", got)
	}
}

func TestRespondDegradesWhenRetrievalUnavailable(t *testing.T) {
	gen := &scriptedGenerator{events: []model.StreamEvent{model.DoneEvent()}}
	svc := newService(gen, unavailableSearcher{})

	err := svc.Respond(context.Background(), "req-1", defaultedRequest(true), func(model.StreamEvent) error { return nil })
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if gen.prompt() != "what is the tuition?" {
		t.Errorf("expected bare message prompt, got %q", gen.prompt())
	}
}

func TestRespondUsesRetrievedContext(t *testing.T) {
	gen := &scriptedGenerator{events: []model.StreamEvent{model.DoneEvent()}}
	svc := newService(gen, fixedSearcher{results: []model.ScoredChunk{
		{Chunk: model.Chunk{ID: 0, Text: "tuition is 9000", Offset: 0}, Score: 0.9},
	}})

	err := svc.Respond(context.Background(), "req-1", defaultedRequest(true), func(model.StreamEvent) error { return nil })
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(gen.prompt(), "tuition is 9000") {
		t.Errorf("prompt lacks retrieved context: %q", gen.prompt())
	}
	if !strings.Contains(gen.prompt(), "what is the tuition?") {
		t.Errorf("prompt lacks user question: %q", gen.prompt())
	}
}

func TestRespondCancelsGenerationWhenEmitFails(t *testing.T) {
	gen := &scriptedGenerator{events: []model.StreamEvent{
		model.Delta("a"), model.Delta("b"), model.Delta("c"), model.DoneEvent(),
	}}
	svc := newService(gen, fixedSearcher{})

	deliveries := 0
	err := svc.Respond(context.Background(), "req-1", defaultedRequest(false), func(ev model.StreamEvent) error {
		deliveries++
		if deliveries == 2 {
			return errors.New("client closed connection")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected an error after emit failure")
	}
	if deliveries != 2 {
		t.Errorf("events kept flowing after disconnect: %d deliveries", deliveries)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !gen.wasCanceled() {
		if time.Now().After(deadline) {
			t.Fatal("generator was never canceled after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRespondSurfacesStartFailureInStream(t *testing.T) {
	gen := &scriptedGenerator{startErr: errors.New("connection refused")}
	svc := newService(gen, fixedSearcher{})

	var got []model.StreamEvent
	err := svc.Respond(context.Background(), "req-1", defaultedRequest(false), func(ev model.StreamEvent) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(got) != 1 || got[0].Error == "" {
		t.Errorf("expected single error event, got %+v", got)
	}
}

func TestCompleteMatchesStreamedOutput(t *testing.T) {
	events := []model.StreamEvent{model.Delta("one "), model.Delta("two"), model.DoneEvent()}
	svc := newService(&scriptedGenerator{events: events}, fixedSearcher{})

	var streamed strings.Builder
	if err := svc.Respond(context.Background(), "req-1", defaultedRequest(false), func(ev model.StreamEvent) error {
		streamed.WriteString(ev.Content)
		return nil
	}); err != nil {
		t.Fatalf("respond: %v", err)
	}

	svc = newService(&scriptedGenerator{events: events}, fixedSearcher{})
	complete, err := svc.Complete(context.Background(), "req-2", defaultedRequest(false))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if complete != streamed.String() {
		t.Errorf("complete %q != streamed %q", complete, streamed.String())
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	p := NewPool(1, 0)

	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := p.Acquire(context.Background()); !errors.Is(err, ErrOverloaded) {
		t.Errorf("got %v, want ErrOverloaded", err)
	}
	p.Release()
}

func TestPoolQueuedCallerGetsSlotOnRelease(t *testing.T) {
	p := NewPool(1, 1)

	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	waited := make(chan error, 1)
	go func() {
		waited <- p.Acquire(context.Background())
	}()

	time.Sleep(50 * time.Millisecond) // let the second caller queue up
	p.Release()

	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("queued acquire: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued caller never got the slot")
	}
	p.Release()
}

func TestPoolAcquireRespectsContext(t *testing.T) {
	p := NewPool(1, 2)
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
}
