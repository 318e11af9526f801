package chunker

import (
	"fmt"

	"github.com/yahya159/mobileApp/internal/model"
)

// ConfigError reports an invalid chunking configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "chunker config: " + e.Reason
}

// Split cuts text into overlapping fixed-size windows. Each chunk starts
// size-overlap runes after the previous one; the last chunk is truncated to
// the remaining length. Offsets and lengths are in runes. Identical input
// and parameters always produce identical chunks.
func Split(text string, size, overlap int) ([]model.Chunk, error) {
	if size <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("chunk size must be positive, got %d", size)}
	}
	if overlap < 0 || overlap >= size {
		return nil, &ConfigError{Reason: fmt.Sprintf("overlap must be in [0, %d), got %d", size, overlap)}
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	stride := size - overlap
	var chunks []model.Chunk
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, model.Chunk{
			ID:     len(chunks),
			Text:   string(runes[start:end]),
			Offset: start,
			Length: end - start,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// Join reconstructs the original text from a chunk sequence produced by
// Split with the given overlap, dropping the duplicated overlap regions.
func Join(chunks []model.Chunk, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []rune(chunks[0].Text)
	for _, ch := range chunks[1:] {
		r := []rune(ch.Text)
		if overlap < len(r) {
			out = append(out, r[overlap:]...)
		}
	}
	return string(out)
}
