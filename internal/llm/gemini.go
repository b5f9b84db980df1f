package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/protocol"
)

// GeminiProvider wraps the official google.golang.org/genai SDK.
type GeminiProvider struct {
	cfg    *config.LLMProviderConfig
	client *genai.Client
}

func NewGeminiProvider(cfg *config.LLMProviderConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("gemini provider: new client: %w", err)
	}
	return &GeminiProvider{cfg: cfg, client: client}, nil
}

func (p *GeminiProvider) ModelName() string    { return p.cfg.Model }
func (p *GeminiProvider) MaxTokens() int        { return p.cfg.MaxTokens }
func (p *GeminiProvider) Temperature() float64 { return p.cfg.Temperature }
func (p *GeminiProvider) Close() error          { return nil }

func (p *GeminiProvider) Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (Response, error) {
	var systemInstruction *genai.Content
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m.Role == protocol.RoleSystem {
			systemInstruction = genai.NewContentFromText(m.Text(), genai.RoleUser)
			continue
		}
		role := genai.RoleUser
		if m.Role == protocol.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text(), role))
	}

	temp := float32(p.cfg.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:       &temp,
		SystemInstruction: systemInstruction,
	}
	if p.cfg.MaxTokens > 0 {
		maxTokens := int32(p.cfg.MaxTokens)
		cfg.MaxOutputTokens = maxTokens
	}
	if len(tools) > 0 {
		cfg.Tools = toGeminiTools(tools)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("gemini provider: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return Response{}, fmt.Errorf("gemini provider: empty response")
	}

	var text string
	var toolCalls []protocol.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			args, _ := mapToJSON(part.FunctionCall.Args)
			toolCalls = append(toolCalls, protocol.ToolCall{
				ID: part.FunctionCall.Name,
				Function: protocol.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: args,
				},
			})
		}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return Response{Text: text, ToolCalls: toolCalls, Tokens: tokens}, nil
}

func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  jsonSchemaFromMap(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func jsonSchemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	return &genai.Schema{Type: genai.TypeObject}
}

func mapToJSON(m map[string]any) (string, error) {
	return encodeJSON(m)
}
