package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renegade-studio/matrix/internal/contextmgr"
	"github.com/renegade-studio/matrix/internal/protocol"
	"github.com/renegade-studio/matrix/internal/tools"
)

type scriptedProvider struct {
	responses []Response
	errs      []error
	calls     int32
}

func (p *scriptedProvider) Generate(_ context.Context, _ []*protocol.Message, _ []ToolDefinition) (Response, error) {
	i := atomic.AddInt32(&p.calls, 1) - 1
	if int(i) < len(p.errs) && p.errs[i] != nil {
		return Response{}, p.errs[i]
	}
	if int(i) >= len(p.responses) {
		return Response{}, fmt.Errorf("scriptedProvider: no response configured for call %d", i)
	}
	return p.responses[i], nil
}
func (p *scriptedProvider) ModelName() string    { return "scripted" }
func (p *scriptedProvider) MaxTokens() int       { return 1024 }
func (p *scriptedProvider) Temperature() float64 { return 0 }
func (p *scriptedProvider) Close() error         { return nil }

func newTestCtxMgr(id string) *contextmgr.Manager {
	return contextmgr.New(id, "", contextmgr.PassthroughFormatter{}, nil)
}

func TestService_Generate_NoToolCallsReturnsFirstResponse(t *testing.T) {
	provider := &scriptedProvider{responses: []Response{{Text: "final answer"}}}
	svc := NewService(provider, "openai", nil, nil, nil, 5)

	resp, err := svc.Generate(context.Background(), "s1", newTestCtxMgr("s1"), "hello")
	require.NoError(t, err)
	assert.Equal(t, "final answer", resp)
	assert.EqualValues(t, 1, provider.calls)
}

func TestService_Generate_RunsToolCallThenReturnsFinalResponse(t *testing.T) {
	toolCall := protocol.ToolCall{ID: "call_1"}
	toolCall.Function.Name = "echo"
	toolCall.Function.Arguments = `{"text":"hi"}`

	provider := &scriptedProvider{responses: []Response{
		{ToolCalls: []protocol.ToolCall{toolCall}},
		{Text: "done"},
	}}

	toolMgr := tools.NewManager(tools.CollisionFirstWins)
	require.NoError(t, toolMgr.RegisterSource(&fakeToolSource{tools: map[string]fakeTool{
		"echo": {result: tools.Result{Success: true, Content: "hi"}},
	}}))
	require.NoError(t, toolMgr.DiscoverAll(context.Background()))

	svc := NewService(provider, "openai", toolMgr, nil, nil, 5)
	resp, err := svc.Generate(context.Background(), "s2", newTestCtxMgr("s2"), "hello")
	require.NoError(t, err)
	assert.Equal(t, "done", resp)
	assert.EqualValues(t, 2, provider.calls)
}

func TestService_Generate_IterationLimitExceeded(t *testing.T) {
	toolCall := protocol.ToolCall{ID: "call_loop"}
	toolCall.Function.Name = "echo"
	toolCall.Function.Arguments = `{}`

	responses := make([]Response, 3)
	for i := range responses {
		responses[i] = Response{ToolCalls: []protocol.ToolCall{toolCall}}
	}
	provider := &scriptedProvider{responses: responses}

	toolMgr := tools.NewManager(tools.CollisionFirstWins)
	require.NoError(t, toolMgr.RegisterSource(&fakeToolSource{tools: map[string]fakeTool{
		"echo": {result: tools.Result{Success: true, Content: "x"}},
	}}))
	require.NoError(t, toolMgr.DiscoverAll(context.Background()))

	svc := NewService(provider, "openai", toolMgr, nil, nil, 3)
	_, err := svc.Generate(context.Background(), "s3", newTestCtxMgr("s3"), "hello")
	var limitErr *IterationLimitExceeded
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.MaxIterations)
}

func TestService_CallWithRetry_SucceedsAfterTransportErrors(t *testing.T) {
	provider := &scriptedProvider{
		errs:      []error{fmt.Errorf("transport down"), fmt.Errorf("still down"), nil},
		responses: []Response{{}, {}, {Text: "recovered"}},
	}
	svc := NewService(provider, "openai", nil, nil, nil, 5)

	resp, err := svc.callWithRetry(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.EqualValues(t, 3, provider.calls)
}

func TestService_DirectGenerate(t *testing.T) {
	provider := &scriptedProvider{responses: []Response{{Text: "direct answer"}}}
	svc := NewService(provider, "openai", nil, nil, nil, 1)

	resp, err := svc.DirectGenerate(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "direct answer", resp)
}

// fakeToolSource/fakeTool are minimal tools.Source/tools.Tool stand-ins.
type fakeTool struct {
	result tools.Result
}

func (t fakeTool) Info() tools.Info { return tools.Info{Name: "echo", Source: "internal"} }
func (t fakeTool) Execute(_ context.Context, _ map[string]any) (tools.Result, error) {
	return t.result, nil
}

type fakeToolSource struct {
	tools map[string]fakeTool
}

func (s *fakeToolSource) Name() string { return "fake" }
func (s *fakeToolSource) Type() string { return "internal" }
func (s *fakeToolSource) DiscoverTools(_ context.Context) error { return nil }
func (s *fakeToolSource) ListTools() []tools.Info {
	out := make([]tools.Info, 0, len(s.tools))
	for name := range s.tools {
		out = append(out, tools.Info{Name: name, Source: "internal"})
	}
	return out
}
func (s *fakeToolSource) GetTool(name string) (tools.Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}
