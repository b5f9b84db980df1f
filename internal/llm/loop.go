package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/renegade-studio/matrix/internal/contextmgr"
	"github.com/renegade-studio/matrix/internal/events"
	"github.com/renegade-studio/matrix/internal/protocol"
	"github.com/renegade-studio/matrix/internal/tools"
	"github.com/renegade-studio/matrix/internal/tracing"
)

// IterationLimitExceeded is returned when the tool-calling loop hits
// maxIterations without the model producing a final, tool-call-free
// response.
type IterationLimitExceeded struct {
	MaxIterations int
}

func (e *IterationLimitExceeded) Error() string {
	return fmt.Sprintf("llm: tool-calling loop exceeded %d iterations", e.MaxIterations)
}

const (
	maxTransportRetries = 3
	retryBackoffUnit    = 500 * time.Millisecond
)

// Service drives one conversational turn through the tool-calling
// loop described in spec.md §4.4.
type Service struct {
	provider      Provider
	providerName  string
	toolMgr       *tools.Manager
	bus           *events.Bus
	metrics       *events.Metrics
	maxIterations int
}

func NewService(provider Provider, providerName string, toolMgr *tools.Manager, bus *events.Bus, metrics *events.Metrics, maxIterations int) *Service {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	return &Service{provider: provider, providerName: providerName, toolMgr: toolMgr, bus: bus, metrics: metrics, maxIterations: maxIterations}
}

// Generate implements the full protocol: append the user message,
// emit responseStarted, loop up to maxIterations composing requests,
// retrying transport errors, executing tool calls, and appending
// results, until a tool-call-free response is produced.
func (s *Service) Generate(ctx context.Context, sessionID string, ctxMgr *contextmgr.Manager, userMsg string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "llm.Generate",
		attribute.String("session.id", sessionID),
		attribute.String("llm.provider", s.providerName),
	)
	defer span.End()

	if err := ctxMgr.AddUserMessage(ctx, userMsg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("llm service: add user message: %w", err)
	}

	responseID := fmt.Sprintf("resp_%d", time.Now().UnixNano())
	s.publish(events.Envelope{
		ID:   responseID,
		Type: events.EventLLMResponseStarted,
		Data: map[string]any{"sessionId": sessionID},
		Metadata: events.Metadata{SessionID: sessionID},
	})

	toolDefs := s.formatToolDefs()

	for iteration := 0; iteration < s.maxIterations; iteration++ {
		messages := ctxMgr.GetFormattedMessage("")

		resp, err := s.callWithRetry(ctx, messages, toolDefs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("llm service: %w", err)
		}

		if resp.Thinking != nil && resp.Thinking.Text != "" {
			slog.Debug("llm thinking", "session", sessionID, "text", resp.Thinking.Text)
			s.publish(events.Envelope{
				Type:     events.EventLLMThinking,
				Data:     resp.Thinking.Text,
				Metadata: events.Metadata{SessionID: sessionID},
			})
		}

		if len(resp.ToolCalls) == 0 {
			if err := ctxMgr.AddAssistantMessage(ctx, resp.Text, nil); err != nil {
				return "", fmt.Errorf("llm service: persist final response: %w", err)
			}
			s.publish(events.Envelope{
				ID:       responseID,
				Type:     events.EventLLMResponseCompleted,
				Data:     resp.Text,
				Metadata: events.Metadata{SessionID: sessionID},
			})
			return resp.Text, nil
		}

		if resp.Text != "" {
			slog.Debug("llm thinking (pre-tool-call text)", "session", sessionID, "text", resp.Text)
			s.publish(events.Envelope{Type: events.EventLLMThinking, Data: resp.Text, Metadata: events.Metadata{SessionID: sessionID}})
		}

		if err := ctxMgr.AddAssistantMessage(ctx, resp.Text, resp.ToolCalls); err != nil {
			return "", fmt.Errorf("llm service: persist assistant tool-call message: %w", err)
		}

		for _, call := range resp.ToolCalls {
			args, err := decodeArguments(call.Function.Arguments)
			if err != nil {
				if aerr := ctxMgr.AddToolResult(ctx, call.ID, call.Function.Name, fmt.Sprintf("error: invalid arguments: %v", err)); aerr != nil {
					return "", fmt.Errorf("llm service: persist argument parse error: %w", aerr)
				}
				continue
			}

			toolCtx, toolSpan := tracing.StartSpan(ctx, "llm.ExecuteTool", attribute.String("tool.name", call.Function.Name))
			start := time.Now()
			result, execErr := s.toolMgr.ExecuteTool(toolCtx, call.Function.Name, args)
			if s.metrics != nil {
				s.metrics.RecordToolExecution(call.Function.Name, execErr == nil && result.Success, time.Since(start))
			}

			payload := result.Content
			if execErr != nil {
				payload = fmt.Sprintf("error: %v", execErr)
				toolSpan.RecordError(execErr)
				toolSpan.SetStatus(codes.Error, execErr.Error())
				s.publish(events.Envelope{Type: events.EventToolExecutionError, Data: call.Function.Name, Metadata: events.Metadata{SessionID: sessionID}})
			} else if !result.Success {
				payload = fmt.Sprintf("error: %s", result.Error)
				toolSpan.SetStatus(codes.Error, result.Error)
			}
			toolSpan.End()

			if err := ctxMgr.AddToolResult(ctx, call.ID, call.Function.Name, payload); err != nil {
				return "", fmt.Errorf("llm service: persist tool result: %w", err)
			}
		}
	}

	return "", &IterationLimitExceeded{MaxIterations: s.maxIterations}
}

// DirectGenerate bypasses the context manager entirely and uses no
// tools (spec.md §4.4). Reserved for internal subsystems: the memory
// decision LLM and the reflection evaluation LLM.
func (s *Service) DirectGenerate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	messages := []*protocol.Message{}
	if systemPrompt != "" {
		messages = append(messages, protocol.NewTextMessage(protocol.RoleSystem, systemPrompt))
	}
	messages = append(messages, protocol.NewTextMessage(protocol.RoleUser, prompt))

	resp, err := s.provider.Generate(ctx, messages, nil)
	if err != nil {
		return "", fmt.Errorf("llm service: direct generate: %w", err)
	}
	return resp.Text, nil
}

// callWithRetry implements step 4b: up to 3 attempts with linear
// backoff (500ms * attempt); the 2nd and 3rd attempts omit tools and
// set tool-choice to none by passing an empty tool list.
func (s *Service) callWithRetry(ctx context.Context, messages []*protocol.Message, toolDefs []ToolDefinition) (Response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxTransportRetries; attempt++ {
		effectiveTools := toolDefs
		if attempt >= 2 {
			effectiveTools = nil
		}

		start := time.Now()
		resp, err := s.provider.Generate(ctx, messages, effectiveTools)
		if s.metrics != nil {
			s.metrics.RecordLLMResponse(s.providerName, s.provider.ModelName(), err, time.Since(start))
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt < maxTransportRetries {
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoffUnit):
			}
		}
	}
	return Response{}, fmt.Errorf("transport error after %d attempts: %w", maxTransportRetries, lastErr)
}

func (s *Service) formatToolDefs() []ToolDefinition {
	if s.toolMgr == nil {
		return nil
	}
	infos := s.toolMgr.GetToolsForProvider(s.providerName)
	out := make([]ToolDefinition, 0, len(infos))
	for _, info := range infos {
		out = append(out, ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  parametersToSchema(info.Parameters),
		})
	}
	return out
}

func parametersToSchema(params []tools.Parameter) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0)
	for _, p := range params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{"type": "object", "properties": properties, "required": required}
}

func (s *Service) publish(env events.Envelope) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(env)
}
