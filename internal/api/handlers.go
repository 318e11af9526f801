package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/yahya159/mobileApp/internal/index"
	"github.com/yahya159/mobileApp/internal/model"
	"github.com/yahya159/mobileApp/internal/ollama"
	"github.com/yahya159/mobileApp/internal/pdf"
	"github.com/yahya159/mobileApp/internal/service"
	"github.com/yahya159/mobileApp/internal/store"
	"github.com/yahya159/mobileApp/internal/util"
)

// Handler holds the dependencies of the HTTP surface. Exactly one of
// manager/pgstore is set depending on the configured vector backend.
type Handler struct {
	chat      *service.ChatService
	llm       *ollama.Client
	manager   *index.Manager
	pgstore   *store.PgStore
	defaults  model.SamplingDefaults
	uploadDir string
	log       *slog.Logger
}

func NewHandler(chat *service.ChatService, llm *ollama.Client, manager *index.Manager, pgstore *store.PgStore, defaults model.SamplingDefaults, uploadDir string, log *slog.Logger) *Handler {
	return &Handler{
		chat:      chat,
		llm:       llm,
		manager:   manager,
		pgstore:   pgstore,
		defaults:  defaults,
		uploadDir: uploadDir,
		log:       log,
	}
}

func (h *Handler) chunkCount(ctx context.Context) int {
	if h.manager != nil {
		return h.manager.Count()
	}
	if h.pgstore != nil {
		n, err := h.pgstore.Count(ctx)
		if err != nil {
			h.log.Warn("chunk count query failed", "error", err)
			return 0
		}
		return n
	}
	return 0
}

// Health is the liveness probe. It always answers 200; degraded
// dependencies show up in the body, not the status code.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":              "healthy",
		"ollama_connected":    h.llm.Connected(c.Context()),
		"vector_store_loaded": h.chunkCount(c.Context()) > 0,
	})
}

// Status reports the full readiness picture for the client UI.
func (h *Handler) Status(c *fiber.Ctx) error {
	connected := h.llm.Connected(c.Context())
	var available []string
	if connected {
		if models, err := h.llm.Models(c.Context()); err == nil {
			available = models
		}
	}
	count := h.chunkCount(c.Context())
	return c.JSON(fiber.Map{
		"ollama_connected": connected,
		"model_name":       h.llm.ModelName(),
		"available_models": available,
		"rag_enabled":      count > 0,
		"chunks_count":     count,
	})
}

func (h *Handler) ListModels(c *fiber.Ctx) error {
	models, err := h.llm.Models(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "ollama is not available"})
	}
	return c.JSON(fiber.Map{"models": models})
}

func (h *Handler) parseChatRequest(c *fiber.Ctx) (model.ChatRequest, error) {
	var req model.ChatRequest
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("malformed request body: %w", err)
	}
	req.ApplyDefaults(h.defaults)
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// Chat answers POST /api/chat. With stream on (the default) the reply is
// server-sent events; otherwise the full completion comes back as JSON.
func (h *Handler) Chat(c *fiber.Ctx) error {
	req, err := h.parseChatRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if !h.llm.Connected(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "ollama is not available"})
	}

	if err := h.chat.AcquireSlot(c.Context()); err != nil {
		if errors.Is(err, service.ErrOverloaded) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "server is overloaded, try again later"})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "request canceled"})
	}

	requestID := uuid.NewString()
	if !*req.Stream {
		defer h.chat.ReleaseSlot()
		content, err := h.chat.Complete(c.Context(), requestID, req)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"content": content})
	}

	// The fiber context is recycled once this handler returns, so
	// everything the stream writer needs is captured beforehand.
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	log := h.log.With("request_id", requestID)
	chat := h.chat

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer chat.ReleaseSlot()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		err := chat.Respond(ctx, requestID, req, func(ev model.StreamEvent) error {
			payload, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return err
			}
			// a failed flush means the client went away
			return w.Flush()
		})
		if err != nil {
			log.Info("stream closed early", "error", err)
		}
	})
	return nil
}

// ChatSimple answers POST /api/chat/simple, always a single JSON reply.
func (h *Handler) ChatSimple(c *fiber.Ctx) error {
	req, err := h.parseChatRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	f := false
	req.Stream = &f
	if !h.llm.Connected(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "ollama is not available"})
	}

	if err := h.chat.AcquireSlot(c.Context()); err != nil {
		if errors.Is(err, service.ErrOverloaded) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "server is overloaded, try again later"})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "request canceled"})
	}
	defer h.chat.ReleaseSlot()

	content, err := h.chat.Complete(c.Context(), uuid.NewString(), req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"content": content})
}

// Ingest accepts a document upload and rebuilds the index from it in the
// background. PDF uploads go through text extraction, anything else is
// treated as plain text.
func (h *Handler) Ingest(c *fiber.Ctx) error {
	if h.manager == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "indexing over http requires the in-memory vector store"})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required (form field: file)"})
	}
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.log.Error("upload dir", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to prepare storage"})
	}
	savePath := filepath.Join(h.uploadDir, util.Timestamped(file.Filename))
	if err := c.SaveFile(file, savePath); err != nil {
		h.log.Error("save upload", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save file"})
	}

	var text string
	if strings.EqualFold(filepath.Ext(savePath), ".pdf") {
		text, err = pdf.ExtractText(savePath)
		if err != nil {
			h.log.Error("pdf extract", "path", savePath, "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to extract text from pdf"})
		}
	} else {
		raw, err := os.ReadFile(savePath)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
		}
		text = string(raw)
	}
	text = pdf.Sanitize(text)
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no text extracted from document"})
	}

	if err := h.manager.StartRebuild(context.Background(), text); err != nil {
		if errors.Is(err, index.ErrBuildInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "an index rebuild is already in progress"})
		}
		h.log.Error("start rebuild", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start indexing"})
	}
	h.log.Info("index rebuild started", "document", filepath.Base(savePath))

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":   "indexing",
		"document": filepath.Base(savePath),
	})
}
