package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renegade-studio/matrix/internal/llm"
	"github.com/renegade-studio/matrix/internal/protocol"
)

// fakeHistoryProvider is an in-memory history.Provider stand-in, good
// enough to exercise both the exclusive and borrowed ownership paths
// without a real database.
type fakeHistoryProvider struct {
	mu     sync.Mutex
	byID   map[string][]*protocol.Message
	closed bool
}

func newFakeHistoryProvider() *fakeHistoryProvider {
	return &fakeHistoryProvider{byID: make(map[string][]*protocol.Message)}
}

func (f *fakeHistoryProvider) AppendMessage(_ context.Context, sessionID string, msg *protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[sessionID] = append(f.byID[sessionID], msg)
	return nil
}

func (f *fakeHistoryProvider) GetMessages(_ context.Context, sessionID string, _ int) ([]*protocol.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Message(nil), f.byID[sessionID]...), nil
}

func (f *fakeHistoryProvider) GetMessageCount(_ context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID[sessionID]), nil
}

func (f *fakeHistoryProvider) DeleteSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, sessionID)
	return nil
}

func (f *fakeHistoryProvider) Close() error {
	f.closed = true
	return nil
}

// fakeLLMProvider returns a fixed response with no tool calls, so the
// tool-calling loop exits after one iteration.
type fakeLLMProvider struct {
	response string
}

func (f *fakeLLMProvider) Generate(_ context.Context, _ []*protocol.Message, _ []llm.ToolDefinition) (llm.Response, error) {
	return llm.Response{Text: f.response}, nil
}
func (f *fakeLLMProvider) ModelName() string     { return "fake-model" }
func (f *fakeLLMProvider) MaxTokens() int        { return 1024 }
func (f *fakeLLMProvider) Temperature() float64  { return 0 }
func (f *fakeLLMProvider) Close() error           { return nil }

func newTestSession(t *testing.T, provider *fakeHistoryProvider) *Session {
	t.Helper()
	sess := New(Config{
		ID:              "sess-1",
		ProviderFamily:  "openai",
		ProviderName:    "openai",
		SystemPrompt:    "be helpful",
		LLMFactory:      func() (llm.Provider, error) { return &fakeLLMProvider{response: "hello there"}, nil },
		MaxIterations:   3,
		HistoryProvider: provider,
	})
	require.NoError(t, sess.Init())
	return sess
}

func TestSession_RunBeforeInit(t *testing.T) {
	sess := New(Config{ID: "sess-uninit", LLMFactory: func() (llm.Provider, error) { return &fakeLLMProvider{}, nil }})
	_, err := sess.Run(context.Background(), "hi", RunOptions{})
	var notInit *NotInitialized
	assert.ErrorAs(t, err, &notInit)
}

func TestSession_RunRejectsEmptyInput(t *testing.T) {
	provider := newFakeHistoryProvider()
	sess := newTestSession(t, provider)
	_, err := sess.Run(context.Background(), "", RunOptions{})
	var invalid *UserInputInvalid
	assert.ErrorAs(t, err, &invalid)
}

func TestSession_RunRejectsIncompleteImage(t *testing.T) {
	provider := newFakeHistoryProvider()
	sess := newTestSession(t, provider)
	_, err := sess.Run(context.Background(), "hi", RunOptions{Image: &ImageData{Image: "abc"}})
	var invalid *UserInputInvalid
	assert.ErrorAs(t, err, &invalid)
}

func TestSession_RunHappyPath(t *testing.T) {
	provider := newFakeHistoryProvider()
	sess := newTestSession(t, provider)

	result, err := sess.Run(context.Background(), "hi", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Response)
	require.NotNil(t, result.BackgroundOperations)
	require.NotPanics(t, result.BackgroundOperations.Wait)

	// borrowed provider: the session must not close it.
	require.NoError(t, sess.Disconnect())
	assert.False(t, provider.closed, "borrowed provider must not be closed by Disconnect")

	msgs, err := provider.GetMessages(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "expected one user message and one assistant message persisted")
}

func TestSession_LLMGuardDoesNotLatchOnFailure(t *testing.T) {
	provider := newFakeHistoryProvider()
	attempts := 0
	sess := New(Config{
		ID:             "sess-retry",
		ProviderFamily: "openai",
		ProviderName:   "openai",
		LLMFactory: func() (llm.Provider, error) {
			attempts++
			if attempts == 1 {
				return nil, assertErr{}
			}
			return &fakeLLMProvider{response: "ok"}, nil
		},
		HistoryProvider: provider,
	})
	require.NoError(t, sess.Init())

	_, err := sess.Run(context.Background(), "hi", RunOptions{})
	assert.Error(t, err)

	result, err := sess.Run(context.Background(), "hi", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Response)
	assert.Equal(t, 2, attempts, "a failed lazy init must not latch; the next call must retry")
	require.NotPanics(t, result.BackgroundOperations.Wait)
}

func TestSession_DisconnectClosesExclusiveProvider(t *testing.T) {
	// exclusive ownership means no HistoryProvider was supplied; without
	// a configured backend, history.Select returns nil and there is
	// nothing to close, so Disconnect is a no-op by construction here.
	sess := New(Config{
		ID:             "sess-exclusive",
		ProviderFamily: "openai",
		LLMFactory:     func() (llm.Provider, error) { return &fakeLLMProvider{}, nil },
	})
	require.NoError(t, sess.Init())
	assert.NoError(t, sess.Disconnect())
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
