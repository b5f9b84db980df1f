package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/renegade-studio/matrix/internal/config"
)

// CohereProvider speaks Cohere's REST embed endpoint directly. No
// client library for Cohere appears anywhere in the reference corpus,
// so this is the one embedder built on net/http rather than an SDK;
// see DESIGN.md for the justification.
type CohereProvider struct {
	cfg    *config.EmbedderProviderConfig
	client *http.Client
}

func NewCohereProvider(cfg *config.EmbedderProviderConfig) (*CohereProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.ai/v1"
	}
	return &CohereProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *CohereProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(cohereEmbedRequest{
		Texts:     []string{text},
		Model:     p.cfg.Model,
		InputType: "search_document",
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cohere embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cohere embedder: status %d: %s", resp.StatusCode, string(b))
	}

	var out cohereEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("cohere embedder: decode response: %w", err)
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("cohere embedder: empty response")
	}
	return out.Embeddings[0], nil
}

func (p *CohereProvider) Dimension() int    { return p.cfg.Dimension }
func (p *CohereProvider) ModelName() string { return p.cfg.Model }
func (p *CohereProvider) Close() error      { return nil }
