package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/yahya159/mobileApp/internal/api"
	"github.com/yahya159/mobileApp/internal/auth"
	"github.com/yahya159/mobileApp/internal/config"
	"github.com/yahya159/mobileApp/internal/embed"
	"github.com/yahya159/mobileApp/internal/index"
	"github.com/yahya159/mobileApp/internal/model"
	"github.com/yahya159/mobileApp/internal/ollama"
	"github.com/yahya159/mobileApp/internal/rag"
	"github.com/yahya159/mobileApp/internal/service"
	"github.com/yahya159/mobileApp/internal/store"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration", "error", err)
		os.Exit(1)
	}

	var embedder embed.Embedder
	switch cfg.EmbedBackend {
	case "openai":
		embedder = embed.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbedModel)
	default:
		embedder = embed.NewOllamaEmbedder(cfg.OllamaHost, cfg.EmbedModel, 30*time.Second)
	}

	var (
		manager  *index.Manager
		pgstore  *store.PgStore
		searcher rag.Searcher
	)
	switch cfg.VectorStore {
	case "pgvector":
		pgstore, err = store.NewPgStore(cfg.PgConn, cfg.EmbedDim)
		if err != nil {
			log.Error("pgvector store", "error", err)
			os.Exit(1)
		}
		defer pgstore.Close()
		searcher = pgstore
	default:
		manager = index.NewManager(embedder, cfg.ChunkSize, cfg.ChunkOverlap, cfg.VectorPath, cfg.ChunkPath, log)
		if err := manager.LoadFromDisk(); err != nil {
			log.Warn("no persisted index loaded, starting without context", "error", err)
		} else {
			log.Info("index loaded", "chunks", manager.Count())
		}
		searcher = manager
	}

	retriever := rag.NewRetriever(embedder, searcher)
	assembler := rag.NewAssembler(cfg.CorpusName, cfg.PromptBudget)
	llm := ollama.New(cfg.OllamaHost, cfg.ChatModel)
	pool := service.NewPool(cfg.PoolSize, cfg.QueueDepth)
	chat := service.NewChatService(retriever, assembler, llm, pool, cfg.GenerationTimeout, log)

	var verifier auth.Verifier
	if cfg.FirebaseProjectID != "" {
		verifier = auth.NewFirebaseVerifier(cfg.FirebaseProjectID)
	}

	defaults := model.SamplingDefaults{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopK:        cfg.TopK,
		TopP:        cfg.TopP,
		RAGTopK:     cfg.RAGTopK,
	}
	h := api.NewHandler(chat, llm, manager, pgstore, defaults, cfg.UploadDir, log)

	app := fiber.New(fiber.Config{
		BodyLimit:    50 * 1024 * 1024, // room for pdf uploads
		ReadTimeout:  time.Minute,
		WriteTimeout: 0, // streams run until generation finishes
	})
	api.RegisterRoutes(app, h, verifier, cfg.CORSOrigins, log)

	log.Info("server starting", "addr", cfg.ServerAddr, "model", cfg.ChatModel, "vector_store", cfg.VectorStore)
	if err := app.Listen(cfg.ServerAddr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
