package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/renegade-studio/matrix/internal/config"
)

// OpenAIProvider delegates to go-openai's Embeddings API, reused for
// any OpenAI-compatible embedding endpoint (set cfg.BaseURL to point
// elsewhere, same as the chat-completion providers in internal/llm).
type OpenAIProvider struct {
	cfg    *config.EmbedderProviderConfig
	client *openai.Client
}

func NewOpenAIProvider(cfg *config.EmbedderProviderConfig) (*OpenAIProvider, error) {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{cfg: cfg, client: openai.NewClientWithConfig(oaCfg)}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.cfg.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embedder: empty response")
	}
	return resp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) Dimension() int    { return p.cfg.Dimension }
func (p *OpenAIProvider) ModelName() string { return p.cfg.Model }
func (p *OpenAIProvider) Close() error      { return nil }
