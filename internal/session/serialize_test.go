package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renegade-studio/matrix/internal/llm"
	"github.com/renegade-studio/matrix/internal/protocol"
)

func buildTestTranscript() []*protocol.Message {
	return []*protocol.Message{
		protocol.NewTextMessage(protocol.RoleUser, "hello"),
		protocol.NewTextMessage(protocol.RoleAssistant, "hi there"),
	}
}

func TestSerialize_PrefersBoundProviderOverInMemory(t *testing.T) {
	provider := newFakeHistoryProvider()
	sess := newTestSession(t, provider)

	ctx := context.Background()
	_, err := sess.Run(ctx, "hi", RunOptions{})
	require.NoError(t, err)
	// a message only the provider holds, so the record shows which source won.
	require.NoError(t, provider.AppendMessage(ctx, "sess-1", protocol.NewTextMessage(protocol.RoleUser, "provider only")))

	record, err := sess.Serialize(ctx, map[string]any{"k": "v"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", record.ID)
	assert.Equal(t, recordVersion, record.Version)
	assert.Len(t, record.ConversationHistory, 3)
	assert.Equal(t, "v", record.Metadata["k"])
}

func TestDeserialize_ReplaysMessagesIntoFreshProvider(t *testing.T) {
	provider := newFakeHistoryProvider()
	msgs := buildTestTranscript()
	rec := &HistoryRecord{ID: "restored", Version: recordVersion, ConversationHistory: msgs}

	cfg := Config{
		ProviderFamily:  "openai",
		ProviderName:    "openai",
		LLMFactory:      func() (llm.Provider, error) { return &fakeLLMProvider{}, nil },
		HistoryProvider: provider,
	}

	sess, err := Deserialize(context.Background(), rec, cfg)
	require.NoError(t, err)
	assert.Equal(t, "restored", sess.ID())

	restored, err := provider.GetMessages(context.Background(), "restored", 0)
	require.NoError(t, err)
	assert.Len(t, restored, len(msgs))
	assert.Equal(t, msgs, sess.ctxMgr.GetRawMessages())
}

func TestRefreshConversationHistory_FallsBackToSnapshotWhenNoProvider(t *testing.T) {
	sess := New(Config{
		ID:             "sess-refresh",
		ProviderFamily: "openai",
		LLMFactory:     func() (llm.Provider, error) { return &fakeLLMProvider{}, nil },
	})
	require.NoError(t, sess.Init())

	snapshot := buildTestTranscript()
	sess.lastSnapshot = snapshot

	err := sess.RefreshConversationHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot, sess.ctxMgr.GetRawMessages())
}
