package rag

import (
	"fmt"
	"strings"

	"github.com/yahya159/mobileApp/internal/model"
)

// Assembler merges retrieved context and the user message into one model
// input. The combined input is capped at a rune budget standing in for the
// model context window: lowest-ranked chunks are evicted first until the
// prompt fits, and the user message itself is never truncated.
type Assembler struct {
	corpusName string
	maxRunes   int
}

func NewAssembler(corpusName string, maxRunes int) *Assembler {
	if corpusName == "" {
		corpusName = "document"
	}
	return &Assembler{corpusName: corpusName, maxRunes: maxRunes}
}

// Assemble builds the model input. With no context the message passes
// through unchanged.
func (a *Assembler) Assemble(message string, context []model.ScoredChunk) string {
	kept := context
	for len(kept) > 0 {
		prompt := a.render(message, kept)
		if a.maxRunes <= 0 || len([]rune(prompt)) <= a.maxRunes {
			return prompt
		}
		kept = kept[:len(kept)-1] // evict the lowest-ranked chunk
	}
	return message
}

func (a *Assembler) render(message string, context []model.ScoredChunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following context from the %s, please answer the user's question. If the context doesn't contain relevant information, use your general knowledge to answer.\n\nContext:\n", a.corpusName)
	for i, sc := range context {
		fmt.Fprintf(&b, "[Context %d | offset %d]\n%s\n\n", i+1, sc.Chunk.Offset, sc.Chunk.Text)
	}
	fmt.Fprintf(&b, "User Question: %s\n\nPlease provide a helpful and accurate answer:", message)
	return b.String()
}
