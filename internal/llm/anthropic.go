package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/protocol"
)

// AnthropicProvider talks to Anthropic's API with an API key and an
// optional BaseURL. It is also selected for the "aws" type, but no
// Bedrock-specific transport or request signing is configured.
type AnthropicProvider struct {
	cfg    *config.LLMProviderConfig
	client *anthropic.Client
}

func NewAnthropicProvider(cfg *config.LLMProviderConfig) (*AnthropicProvider, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{cfg: cfg, client: &client}, nil
}

func (p *AnthropicProvider) ModelName() string    { return p.cfg.Model }
func (p *AnthropicProvider) MaxTokens() int        { return p.cfg.MaxTokens }
func (p *AnthropicProvider) Temperature() float64 { return p.cfg.Temperature }
func (p *AnthropicProvider) Close() error          { return nil }

func (p *AnthropicProvider) Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (Response, error) {
	maxTokens := int64(p.cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var systemPrompt string
	anthMessages := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == protocol.RoleSystem {
			systemPrompt += m.Text()
			continue
		}
		anthMessages = append(anthMessages, toAnthropicMessage(m))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.cfg.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(p.cfg.Temperature),
		Messages:    anthMessages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic provider: %w", err)
	}

	var text string
	var toolCalls []protocol.ToolCall
	var thinking *ThinkingBlock
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(b.Input)
			toolCalls = append(toolCalls, protocol.ToolCall{
				ID: b.ID,
				Function: protocol.FunctionCall{
					Name:      b.Name,
					Arguments: string(args),
				},
			})
		case anthropic.ThinkingBlock:
			thinking = &ThinkingBlock{Text: b.Thinking, Signature: b.Signature}
		}
	}

	return Response{
		Text:      text,
		ToolCalls: toolCalls,
		Tokens:    int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		Thinking:  thinking,
	}, nil
}

func toAnthropicMessage(m *protocol.Message) anthropic.MessageParam {
	role := anthropic.MessageParamRoleUser
	if m.Role == protocol.RoleAssistant {
		role = anthropic.MessageParamRoleAssistant
	}

	if m.Role == protocol.RoleTool {
		return anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Text(), false))
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content)+len(m.ToolCalls))
	if text := m.Text(); text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}
	for _, tc := range m.ToolCalls {
		var input any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
	}

	return anthropic.MessageParam{Role: role, Content: blocks}
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: t.Parameters,
		}, t.Name))
	}
	return out
}
