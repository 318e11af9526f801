package index

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yahya159/mobileApp/internal/model"
)

// The on-disk form is a pair of files: a gob vector file and a JSON chunk
// metadata file. They are only meaningful together; Load rejects a pair
// whose counts disagree.

type vectorFile struct {
	Dimension int
	Vectors   [][]float32
}

type chunkFile struct {
	Model  string        `json:"embedding_model"`
	Chunks []model.Chunk `json:"chunks"`
}

// Save writes the index to the vector/chunk file pair, creating parent
// directories as needed.
func (x *Index) Save(vectorPath, chunkPath, embeddingModel string) error {
	for _, p := range []string{vectorPath, chunkPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("prepare index dir: %w", err)
		}
	}

	vf, err := os.Create(vectorPath)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	defer vf.Close()
	if err := gob.NewEncoder(vf).Encode(vectorFile{Dimension: x.dimension, Vectors: x.vectors}); err != nil {
		return fmt.Errorf("encode vectors: %w", err)
	}

	data, err := json.MarshalIndent(chunkFile{Model: embeddingModel, Chunks: x.chunks}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chunks: %w", err)
	}
	if err := os.WriteFile(chunkPath, data, 0o644); err != nil {
		return fmt.Errorf("write chunk file: %w", err)
	}
	return nil
}

// Load reads a persisted index pair and returns a ready index together with
// the embedding model name recorded at save time.
func Load(vectorPath, chunkPath string) (*Index, string, error) {
	vf, err := os.Open(vectorPath)
	if err != nil {
		return nil, "", fmt.Errorf("open vector file: %w", err)
	}
	defer vf.Close()

	var vecs vectorFile
	if err := gob.NewDecoder(vf).Decode(&vecs); err != nil {
		return nil, "", fmt.Errorf("%w: decode vectors: %v", ErrCorrupt, err)
	}

	data, err := os.ReadFile(chunkPath)
	if err != nil {
		return nil, "", fmt.Errorf("read chunk file: %w", err)
	}
	var chunks chunkFile
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, "", fmt.Errorf("%w: decode chunks: %v", ErrCorrupt, err)
	}

	if len(vecs.Vectors) != len(chunks.Chunks) {
		return nil, "", fmt.Errorf("%w: %d vectors but %d chunks", ErrCorrupt, len(vecs.Vectors), len(chunks.Chunks))
	}

	idx, err := Build(chunks.Chunks, vecs.Vectors)
	if err != nil {
		return nil, "", err
	}
	if vecs.Dimension != idx.dimension {
		return nil, "", fmt.Errorf("%w: recorded dimension %d, vectors have %d", ErrCorrupt, vecs.Dimension, idx.dimension)
	}
	return idx, chunks.Model, nil
}
