package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yahya159/mobileApp/internal/model"
	"github.com/yahya159/mobileApp/internal/rag"
	"github.com/yahya159/mobileApp/internal/util"
)

// Generator is the slice of the model runtime client the chat flow needs.
type Generator interface {
	Stream(ctx context.Context, prompt string, s model.Sampling) (<-chan model.StreamEvent, error)
}

// ChatService drives one chat request end to end: optional retrieval,
// prompt assembly, generation, and event delivery. It holds no per-request
// state; every call is an independent session.
type ChatService struct {
	retriever *rag.Retriever
	assembler *rag.Assembler
	generator Generator
	pool      *Pool
	timeout   time.Duration
	log       *slog.Logger
}

func NewChatService(retriever *rag.Retriever, assembler *rag.Assembler, generator Generator, pool *Pool, timeout time.Duration, log *slog.Logger) *ChatService {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ChatService{
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		pool:      pool,
		timeout:   timeout,
		log:       log,
	}
}

// AcquireSlot reserves runtime capacity for one generation. The gateway
// calls it before committing to a streamed response so overload can still
// be rejected with a plain status code.
func (s *ChatService) AcquireSlot(ctx context.Context) error {
	return s.pool.Acquire(ctx)
}

// ReleaseSlot frees capacity taken by AcquireSlot.
func (s *ChatService) ReleaseSlot() {
	s.pool.Release()
}

// Respond runs a validated, defaulted request and hands every stream event
// to emit in generation order, ending with exactly one terminal event. If
// emit fails (client gone) the generation is canceled and the error is
// returned without further emission — there is nobody left to tell.
//
// The caller must hold a runtime slot.
func (s *ChatService) Respond(ctx context.Context, requestID string, req model.ChatRequest, emit func(model.StreamEvent) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := s.log.With("request_id", requestID)
	prompt := s.buildPrompt(ctx, log, req)

	events, err := s.generator.Stream(ctx, prompt, req.Sampling())
	if err != nil {
		log.Error("generation could not start", "error", err)
		return emit(model.ErrorEvent(upstreamMessage(err)))
	}

	for ev := range events {
		if err := emit(ev); err != nil {
			cancel() // stops the generator's consumption promptly
			log.Info("client disconnected mid-generation")
			return fmt.Errorf("stream aborted: %w", err)
		}
		if ev.Terminal() {
			return nil
		}
	}

	// channel closed without a terminal event: the generation was canceled
	// under us, usually by the wall-clock timeout
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("generation hit the wall-clock timeout")
		return emit(model.ErrorEvent("generation timed out"))
	}
	return emit(model.ErrorEvent("generation canceled"))
}

// Complete drains a full generation server-side; the non-streaming
// endpoints are implemented on top of it. The caller must hold a slot.
func (s *ChatService) Complete(ctx context.Context, requestID string, req model.ChatRequest) (string, error) {
	var b strings.Builder
	var failure error
	err := s.Respond(ctx, requestID, req, func(ev model.StreamEvent) error {
		switch {
		case ev.Error != "":
			failure = errors.New(ev.Error)
		case !ev.Done:
			b.WriteString(ev.Content)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if failure != nil {
		return "", failure
	}
	return b.String(), nil
}

// buildPrompt retrieves context when RAG is requested and degrades to the
// bare message when retrieval is unavailable. Degradation is logged, never
// surfaced as an error: a plain answer beats no answer.
func (s *ChatService) buildPrompt(ctx context.Context, log *slog.Logger, req model.ChatRequest) string {
	if !req.RAGEnabled {
		return req.Message
	}
	results, err := s.retriever.Retrieve(ctx, req.Message, *req.RAGTopK)
	if err != nil {
		if errors.Is(err, rag.ErrUnavailable) {
			log.Warn("retrieval unavailable, answering without context",
				"query", util.TruncateRunes(req.Message, 80))
		} else {
			log.Error("retrieval failed, answering without context", "error", err)
		}
		return req.Message
	}
	if len(results) == 0 {
		return req.Message
	}
	log.Debug("retrieved context", "chunks", len(results), "top_score", results[0].Score)
	return s.assembler.Assemble(req.Message, results)
}

func upstreamMessage(err error) string {
	return fmt.Sprintf("model runtime unavailable: %v", err)
}
