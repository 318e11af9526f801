package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		// deterministic vector derived from the prompt length
		vec := []float32{float32(len(req.Prompt)), 1, 0}
		json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 5*time.Second)
	if e.Dimension() != 0 {
		t.Errorf("dimension before first embed = %d, want 0", e.Dimension())
	}

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 5 {
		t.Errorf("unexpected vector %v", vec)
	}
	if e.Dimension() != 3 {
		t.Errorf("dimension = %d, want 3", e.Dimension())
	}

	batch, err := e.EmbedBatch(context.Background(), []string{"a", "bb"})
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(batch) != 2 || batch[0][0] != 1 || batch[1][0] != 2 {
		t.Errorf("unexpected batch %v", batch)
	}
}

func TestOllamaEmbedderConcurrentEmbeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 0, 0.5}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 5*time.Second)

	// the first embeds race to record the dimension; run under -race
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Embed(context.Background(), "hello"); err != nil {
				t.Errorf("embed: %v", err)
			}
			_ = e.Dimension()
		}()
	}
	wg.Wait()

	if e.Dimension() != 3 {
		t.Errorf("dimension = %d, want 3", e.Dimension())
	}
}

func TestOllamaEmbedderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "missing", time.Second)
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error from non-200 response")
	}
}
