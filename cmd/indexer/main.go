package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yahya159/mobileApp/internal/chunker"
	"github.com/yahya159/mobileApp/internal/config"
	"github.com/yahya159/mobileApp/internal/embed"
	"github.com/yahya159/mobileApp/internal/index"
	"github.com/yahya159/mobileApp/internal/ollama"
	"github.com/yahya159/mobileApp/internal/pdf"
	"github.com/yahya159/mobileApp/internal/store"
)

// indexer builds the vector index out-of-band: extract text from a source
// document, chunk, embed, and write either the on-disk index pair or the
// pgvector table, depending on the configured store.
func main() {
	file := flag.String("file", "", "source document (.pdf or plain text)")
	flag.Parse()

	_ = godotenv.Load()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: indexer -file <document>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration", "error", err)
		os.Exit(1)
	}

	text, err := extract(*file)
	if err != nil {
		log.Error("extract", "file", *file, "error", err)
		os.Exit(1)
	}
	text = pdf.Sanitize(text)
	if text == "" {
		log.Error("no text extracted", "file", *file)
		os.Exit(1)
	}
	log.Info("text extracted", "file", *file, "runes", len([]rune(text)))

	var embedder embed.Embedder
	switch cfg.EmbedBackend {
	case "openai":
		embedder = embed.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbedModel)
	default:
		embedder = embed.NewOllamaEmbedder(cfg.OllamaHost, cfg.EmbedModel, 30*time.Second)
	}

	// fail fast when the embedding runtime is down
	if cfg.EmbedBackend == "ollama" {
		probe := ollama.New(cfg.OllamaHost, cfg.EmbedModel)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		connected := probe.Connected(ctx)
		cancel()
		if !connected {
			log.Error("ollama unreachable", "host", cfg.OllamaHost)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	start := time.Now()

	switch cfg.VectorStore {
	case "pgvector":
		chunks, err := chunker.Split(text, cfg.ChunkSize, cfg.ChunkOverlap)
		if err != nil {
			log.Error("chunking", "error", err)
			os.Exit(1)
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			log.Error("embedding", "error", err)
			os.Exit(1)
		}
		if embedder.Dimension() != cfg.EmbedDim {
			log.Error("embedding model dimension does not match the configured pgvector column",
				"model_dimension", embedder.Dimension(), "configured", cfg.EmbedDim)
			os.Exit(1)
		}
		pg, err := store.NewPgStore(cfg.PgConn, cfg.EmbedDim)
		if err != nil {
			log.Error("pgvector store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Replace(ctx, chunks, vectors); err != nil {
			log.Error("store replace", "error", err)
			os.Exit(1)
		}
		log.Info("pgvector corpus replaced", "chunks", len(chunks), "dimension", cfg.EmbedDim, "elapsed", time.Since(start))
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.VectorPath), 0o755); err != nil {
			log.Error("index dir", "error", err)
			os.Exit(1)
		}
		manager := index.NewManager(embedder, cfg.ChunkSize, cfg.ChunkOverlap, cfg.VectorPath, cfg.ChunkPath, log)
		idx, err := manager.Rebuild(ctx, text)
		if err != nil {
			log.Error("index build", "error", err)
			os.Exit(1)
		}
		log.Info("index written", "chunks", idx.Len(), "dimension", idx.Dimension(), "vector_file", cfg.VectorPath, "chunk_file", cfg.ChunkPath, "elapsed", time.Since(start))
	}
}

func extract(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return pdf.ExtractText(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
