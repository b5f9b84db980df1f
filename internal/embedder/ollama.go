package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/renegade-studio/matrix/internal/config"
)

// ollamaEmbedMu serializes Ollama embedding requests. Ollama's runner
// crashes with SIGABRT on concurrent /api/embeddings calls against the
// same model, so every request funnels through one lock.
var ollamaEmbedMu sync.Mutex

type OllamaProvider struct {
	cfg    *config.EmbedderProviderConfig
	client *http.Client
}

func NewOllamaProvider(cfg *config.EmbedderProviderConfig) (*OllamaProvider, error) {
	return &OllamaProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.cfg.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	var resp *http.Response
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/embeddings", bytes.NewReader(body))
		if rerr != nil {
			return nil, fmt.Errorf("ollama embedder: build request: %w", rerr)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err = p.client.Do(req)
		if err == nil {
			break
		}
		slog.Debug("ollama embedding retry", "attempt", attempt+1, "error", err)
		if attempt < p.cfg.MaxRetries-1 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embedder: status %d: %s", resp.StatusCode, string(b))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", err)
	}
	return out.Embedding, nil
}

func (p *OllamaProvider) Dimension() int   { return p.cfg.Dimension }
func (p *OllamaProvider) ModelName() string { return p.cfg.Model }
func (p *OllamaProvider) Close() error      { return nil }
