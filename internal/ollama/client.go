package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yahya159/mobileApp/internal/model"
)

// ErrUnavailable means the model runtime could not be reached or rejected
// the request before any token was produced.
var ErrUnavailable = errors.New("model runtime unavailable")

// Client drives Ollama's native generate API. Generation is consumed as a
// stream of tagged events; cancellation is the context — canceling it
// closes the underlying response body, which tells the runtime to abandon
// the in-flight generation. Canceling after completion is a no-op.
type Client struct {
	host  string
	model string
	http  *http.Client
}

func New(host, modelName string) *Client {
	return &Client{
		host:  strings.TrimRight(host, "/"),
		model: modelName,
		// no client timeout: the per-request context carries the deadline
		http: &http.Client{},
	}
}

func (c *Client) ModelName() string { return c.model }

// Connected reports whether the runtime answers its tags endpoint.
func (c *Client) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Models lists the model names the runtime has available.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tags endpoint status %d", ErrUnavailable, resp.StatusCode)
	}
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	TopK        int     `json:"top_k"`
	TopP        float64 `json:"top_p"`
}

type generateLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Stream starts a generation and returns its event sequence: zero or more
// deltas followed by exactly one Done or Error, after which the channel is
// closed. A pre-stream failure (runtime unreachable, non-200 status) is
// returned as an error instead, so the caller can still choose its own
// transport-level response.
func (c *Client) Stream(ctx context.Context, prompt string, s model.Sampling) (<-chan model.StreamEvent, error) {
	payload := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: true,
		Options: generateOptions{
			Temperature: s.Temperature,
			NumPredict:  s.MaxTokens,
			TopK:        s.TopK,
			TopP:        s.TopP,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: generate status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	events := make(chan model.StreamEvent)
	go c.consume(ctx, resp.Body, events)
	return events, nil
}

func (c *Client) consume(ctx context.Context, body io.ReadCloser, events chan<- model.StreamEvent) {
	defer close(events)
	defer body.Close()

	send := func(ev model.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateLine
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue // the runtime occasionally interleaves non-JSON noise
		}
		if chunk.Error != "" {
			send(model.ErrorEvent(chunk.Error))
			return
		}
		if chunk.Response != "" {
			if !send(model.Delta(chunk.Response)) {
				return
			}
		}
		if chunk.Done {
			send(model.DoneEvent())
			return
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return // canceled by the session, nobody is listening
		}
		send(model.ErrorEvent(fmt.Sprintf("stream interrupted: %v", err)))
		return
	}
	send(model.ErrorEvent("stream ended without completion"))
}

// Complete drains a full generation server-side and returns the
// concatenated output.
func (c *Client) Complete(ctx context.Context, prompt string, s model.Sampling) (string, error) {
	events, err := c.Stream(ctx, prompt, s)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for ev := range events {
		switch {
		case ev.Error != "":
			return "", fmt.Errorf("generation failed: %s", ev.Error)
		case ev.Done:
			return b.String(), nil
		default:
			b.WriteString(ev.Content)
		}
	}
	return "", ctx.Err()
}
