package model

import "fmt"

// Chunk is one overlapping window of the source document. Chunks are
// immutable: a reindex regenerates them from scratch, it never edits them.
type Chunk struct {
	ID     int    `json:"id"`
	Text   string `json:"text"`
	Offset int    `json:"source_offset"`
	Length int    `json:"length"`
}

// ScoredChunk is a retrieved chunk together with its similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Sampling holds the model sampling parameters forwarded to the runtime.
// TopK here is the sampler's top-k, not the retrieval count.
type Sampling struct {
	Temperature float64
	MaxTokens   int
	TopK        int
	TopP        float64
}

// SamplingDefaults are the values applied to fields the caller omitted.
type SamplingDefaults struct {
	Temperature float64
	MaxTokens   int
	TopK        int
	TopP        float64
	RAGTopK     int
}

// ChatRequest is the wire body of the chat endpoints. Optional fields are
// pointers so that an omitted field can be told apart from a zero value.
type ChatRequest struct {
	Message     string   `json:"message"`
	RAGEnabled  bool     `json:"rag_enabled"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	RAGTopK     *int     `json:"rag_top_k,omitempty"`
	Stream      *bool    `json:"stream,omitempty"`
}

// ValidationError reports a malformed request field. It is terminal: the
// request is rejected before any retrieval or generation work starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ApplyDefaults fills omitted optional fields. Stream defaults to true.
func (r *ChatRequest) ApplyDefaults(d SamplingDefaults) {
	if r.Temperature == nil {
		r.Temperature = &d.Temperature
	}
	if r.MaxTokens == nil {
		r.MaxTokens = &d.MaxTokens
	}
	if r.TopK == nil {
		r.TopK = &d.TopK
	}
	if r.TopP == nil {
		r.TopP = &d.TopP
	}
	if r.RAGTopK == nil {
		r.RAGTopK = &d.RAGTopK
	}
	if r.Stream == nil {
		t := true
		r.Stream = &t
	}
}

// Validate range-checks the request after defaults have been applied.
func (r *ChatRequest) Validate() error {
	if r.Message == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if *r.Temperature < 0 || *r.Temperature > 2 {
		return &ValidationError{Field: "temperature", Reason: "must be in [0, 2]"}
	}
	if *r.MaxTokens <= 0 {
		return &ValidationError{Field: "max_tokens", Reason: "must be positive"}
	}
	if *r.TopK <= 0 {
		return &ValidationError{Field: "top_k", Reason: "must be positive"}
	}
	if *r.TopP <= 0 || *r.TopP > 1 {
		return &ValidationError{Field: "top_p", Reason: "must be in (0, 1]"}
	}
	if *r.RAGTopK <= 0 {
		return &ValidationError{Field: "rag_top_k", Reason: "must be positive"}
	}
	return nil
}

// Sampling extracts the model sampling parameters from a defaulted request.
func (r *ChatRequest) Sampling() Sampling {
	return Sampling{
		Temperature: *r.Temperature,
		MaxTokens:   *r.MaxTokens,
		TopK:        *r.TopK,
		TopP:        *r.TopP,
	}
}

// StreamEvent is one tagged event of a generation stream. A stream is zero
// or more deltas (Content set) followed by exactly one terminal event:
// either Done or Error, never both, never anything after it.
type StreamEvent struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Delta(text string) StreamEvent { return StreamEvent{Content: text} }

func DoneEvent() StreamEvent { return StreamEvent{Done: true} }

func ErrorEvent(msg string) StreamEvent { return StreamEvent{Error: msg} }

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool { return e.Done || e.Error != "" }
