package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/protocol"
)

// OpenAIShapedProvider covers every backend that speaks the OpenAI
// chat-completions wire format: openai itself, openrouter, ollama's
// OpenAI-compatible endpoint, lmstudio, and qwen. Only the BaseURL and
// API key differ between them.
type OpenAIShapedProvider struct {
	cfg    *config.LLMProviderConfig
	client *openai.Client
}

func NewOpenAIShapedProvider(cfg *config.LLMProviderConfig) (*OpenAIShapedProvider, error) {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIShapedProvider{cfg: cfg, client: openai.NewClientWithConfig(oaCfg)}, nil
}

// NewAzureProvider reuses the same client with go-openai's Azure
// config constructor; Azure differs only in auth/routing, not in the
// chat-completions semantics.
func NewAzureProvider(cfg *config.LLMProviderConfig) (*OpenAIShapedProvider, error) {
	oaCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
	return &OpenAIShapedProvider{cfg: cfg, client: openai.NewClientWithConfig(oaCfg)}, nil
}

func (p *OpenAIShapedProvider) ModelName() string    { return p.cfg.Model }
func (p *OpenAIShapedProvider) MaxTokens() int        { return p.cfg.MaxTokens }
func (p *OpenAIShapedProvider) Temperature() float64 { return p.cfg.Temperature }
func (p *OpenAIShapedProvider) Close() error          { return nil }

func (p *OpenAIShapedProvider) Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(p.cfg.Temperature),
	}
	if p.cfg.MaxTokens > 0 {
		req.MaxTokens = p.cfg.MaxTokens
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("openai-shaped provider: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai-shaped provider: empty response")
	}

	choice := resp.Choices[0]
	return Response{
		Text:      choice.Message.Content,
		ToolCalls: fromOpenAIToolCalls(choice.Message.ToolCalls),
		Tokens:    resp.Usage.TotalTokens,
	}, nil
}

func toOpenAIMessages(messages []*protocol.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Text(),
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []protocol.ToolCall {
	out := make([]protocol.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, protocol.ToolCall{
			ID: c.ID,
			Function: protocol.FunctionCall{
				Name:      c.Function.Name,
				Arguments: c.Function.Arguments,
			},
		})
	}
	return out
}

// decodeArguments turns a tool call's raw JSON arguments into a map
// before the tool-calling loop dispatches to the tool manager.
func decodeArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("llm: decode tool arguments: %w", err)
	}
	return out, nil
}
