package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the server. Values come from an optional
// YAML file (CONFIG_PATH) with environment variables taking precedence, so
// a container can override any single knob without a file edit.
type Config struct {
	ServerAddr  string `yaml:"server_addr"`
	CORSOrigins string `yaml:"cors_origins"`

	OllamaHost string `yaml:"ollama_host"`
	ChatModel  string `yaml:"chat_model"`

	EmbedBackend  string `yaml:"embed_backend"` // "ollama" or "openai"
	EmbedModel    string `yaml:"embed_model"`
	EmbedDim      int    `yaml:"embed_dimension"` // pgvector column width
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`

	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	RAGTopK      int    `yaml:"rag_top_k"`
	PromptBudget int    `yaml:"prompt_budget"`
	CorpusName   string `yaml:"corpus_name"`

	VectorStore string `yaml:"vector_store"` // "memory" or "pgvector"
	PgConn      string `yaml:"pg_conn"`
	VectorPath  string `yaml:"vector_path"`
	ChunkPath   string `yaml:"chunk_path"`
	UploadDir   string `yaml:"upload_dir"`

	PoolSize          int           `yaml:"pool_size"`
	QueueDepth        int           `yaml:"queue_depth"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopK        int     `yaml:"top_k"`
	TopP        float64 `yaml:"top_p"`

	FirebaseProjectID string `yaml:"firebase_project_id"`
}

// Load builds the configuration. Defaults first, then the YAML file named
// by CONFIG_PATH if set, then environment variables on top.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ServerAddr:  ":8080",
		CORSOrigins: "*",

		OllamaHost: "http://localhost:11434",
		ChatModel:  "llama3.2:3b",

		EmbedBackend:  "ollama",
		EmbedModel:    "nomic-embed-text",
		EmbedDim:      768,
		OpenAIBaseURL: "http://localhost:1234/v1",

		ChunkSize:    1000,
		ChunkOverlap: 200,
		RAGTopK:      3,
		PromptBudget: 8000,
		CorpusName:   "university brochure",

		VectorStore: "memory",
		PgConn:      "host=localhost port=5432 user=postgres password=postgres dbname=rag sslmode=disable",
		VectorPath:  "data/index.gob",
		ChunkPath:   "data/chunks.json",
		UploadDir:   "data/uploads",

		PoolSize:          4,
		QueueDepth:        16,
		GenerationTimeout: 5 * time.Minute,

		Temperature: 0.7,
		MaxTokens:   1024,
		TopK:        40,
		TopP:        0.9,
	}
}

func (c *Config) applyEnv() {
	c.ServerAddr = getenv("SERVER_ADDR", c.ServerAddr)
	c.CORSOrigins = getenv("CORS_ORIGINS", c.CORSOrigins)

	c.OllamaHost = getenv("OLLAMA_HOST", c.OllamaHost)
	c.ChatModel = getenv("LLM_MODEL", c.ChatModel)

	c.EmbedBackend = getenv("EMBED_BACKEND", c.EmbedBackend)
	c.EmbedModel = getenv("EMBED_MODEL", c.EmbedModel)
	c.EmbedDim = getenvInt("EMBED_DIMENSION", c.EmbedDim)
	c.OpenAIBaseURL = getenv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIAPIKey = getenv("OPENAI_API_KEY", c.OpenAIAPIKey)

	c.ChunkSize = getenvInt("RAG_CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = getenvInt("RAG_CHUNK_OVERLAP", c.ChunkOverlap)
	c.RAGTopK = getenvInt("RAG_TOP_K", c.RAGTopK)
	c.PromptBudget = getenvInt("RAG_PROMPT_BUDGET", c.PromptBudget)
	c.CorpusName = getenv("RAG_CORPUS_NAME", c.CorpusName)

	c.VectorStore = getenv("VECTOR_STORE", c.VectorStore)
	c.PgConn = getenv("PG_CONN", c.PgConn)
	c.VectorPath = getenv("VECTOR_PATH", c.VectorPath)
	c.ChunkPath = getenv("CHUNK_PATH", c.ChunkPath)
	c.UploadDir = getenv("UPLOAD_DIR", c.UploadDir)

	c.PoolSize = getenvInt("POOL_SIZE", c.PoolSize)
	c.QueueDepth = getenvInt("QUEUE_DEPTH", c.QueueDepth)
	c.GenerationTimeout = getenvDuration("GENERATION_TIMEOUT", c.GenerationTimeout)

	c.Temperature = getenvFloat("LLM_TEMPERATURE", c.Temperature)
	c.MaxTokens = getenvInt("LLM_MAX_TOKENS", c.MaxTokens)
	c.TopK = getenvInt("LLM_TOP_K", c.TopK)
	c.TopP = getenvFloat("LLM_TOP_P", c.TopP)

	c.FirebaseProjectID = getenv("FIREBASE_PROJECT_ID", c.FirebaseProjectID)
}

func (c *Config) validate() error {
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("config: chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	switch c.EmbedBackend {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown embed backend %q", c.EmbedBackend)
	}
	switch c.VectorStore {
	case "memory":
	case "pgvector":
		if c.EmbedDim <= 0 {
			return fmt.Errorf("config: pgvector store needs a positive embedding dimension, got %d", c.EmbedDim)
		}
	default:
		return fmt.Errorf("config: unknown vector store %q", c.VectorStore)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
