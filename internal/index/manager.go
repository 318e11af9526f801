package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/yahya159/mobileApp/internal/chunker"
	"github.com/yahya159/mobileApp/internal/embed"
	"github.com/yahya159/mobileApp/internal/model"
)

// Manager owns the process-wide active index. Readers take a snapshot of
// the active pointer, so an in-flight query keeps working against the index
// version it started with while a rebuild swaps in a fresh one. Only one
// build may run at a time; the swap happens only after a build fully
// succeeds, so readers never observe a half-built index.
type Manager struct {
	embedder     embed.Embedder
	chunkSize    int
	chunkOverlap int
	vectorPath   string
	chunkPath    string
	log          *slog.Logger

	active   atomic.Pointer[Index]
	building atomic.Bool
}

func NewManager(embedder embed.Embedder, chunkSize, chunkOverlap int, vectorPath, chunkPath string, log *slog.Logger) *Manager {
	return &Manager{
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		vectorPath:   vectorPath,
		chunkPath:    chunkPath,
		log:          log,
	}
}

// Active returns the current index snapshot, or nil when absent/building.
func (m *Manager) Active() *Index {
	return m.active.Load()
}

// Count reports the number of chunks in the active index, 0 when absent.
func (m *Manager) Count() int {
	if idx := m.active.Load(); idx != nil {
		return idx.Len()
	}
	return 0
}

// LoadFromDisk restores a persisted index pair and activates it.
func (m *Manager) LoadFromDisk() error {
	idx, embedModel, err := Load(m.vectorPath, m.chunkPath)
	if err != nil {
		return err
	}
	if embedModel != "" && embedModel != m.embedder.ModelInfo() {
		return fmt.Errorf("%w: persisted with embedding model %q, configured model is %q",
			ErrCorrupt, embedModel, m.embedder.ModelInfo())
	}
	m.active.Store(idx)
	m.log.Info("vector index loaded", "chunks", idx.Len(), "dimension", idx.Dimension())
	return nil
}

// Rebuild chunks and embeds the document text, builds a fresh index,
// persists it and atomically swaps it in. A rebuild while another is
// running fails with ErrBuildInProgress; the active index stays intact on
// any failure.
func (m *Manager) Rebuild(ctx context.Context, text string) (*Index, error) {
	if !m.building.CompareAndSwap(false, true) {
		return nil, ErrBuildInProgress
	}
	defer m.building.Store(false)
	return m.build(ctx, text)
}

// StartRebuild claims the build slot synchronously and runs the rebuild in
// the background, so a caller that loses the race learns it immediately
// instead of after the upload is accepted.
func (m *Manager) StartRebuild(ctx context.Context, text string) error {
	if !m.building.CompareAndSwap(false, true) {
		return ErrBuildInProgress
	}
	go func() {
		defer m.building.Store(false)
		idx, err := m.build(ctx, text)
		if err != nil {
			m.log.Error("background index rebuild failed", "error", err)
			return
		}
		m.log.Info("background index rebuild finished", "chunks", idx.Len())
	}()
	return nil
}

func (m *Manager) build(ctx context.Context, text string) (*Index, error) {
	chunks, err := chunker.Split(text, m.chunkSize, m.chunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document produced no chunks")
	}
	m.log.Info("building vector index", "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	idx, err := Build(chunks, vectors)
	if err != nil {
		return nil, err
	}
	if err := idx.Save(m.vectorPath, m.chunkPath, m.embedder.ModelInfo()); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	m.active.Store(idx)
	m.log.Info("vector index ready", "chunks", idx.Len(), "dimension", idx.Dimension())
	return idx, nil
}

// Search embeds nothing; it runs a nearest-neighbor query against the
// active index snapshot and resolves hits to chunk bodies. Fails with
// ErrNotReady when no index is active.
func (m *Manager) Search(ctx context.Context, vec []float32, k int) ([]model.ScoredChunk, error) {
	idx := m.active.Load()
	if idx == nil {
		return nil, ErrNotReady
	}
	hits, err := idx.Query(vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		ch, ok := idx.Chunk(h.ChunkID)
		if !ok {
			return nil, fmt.Errorf("%w: hit references unknown chunk %d", ErrCorrupt, h.ChunkID)
		}
		out = append(out, model.ScoredChunk{Chunk: ch, Score: h.Score})
	}
	return out, nil
}

// Shutdown drops the active index reference.
func (m *Manager) Shutdown() {
	m.active.Store(nil)
}
