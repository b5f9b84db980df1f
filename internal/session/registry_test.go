package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renegade-studio/matrix/internal/llm"
)

func TestRegistry_TrackAndGet(t *testing.T) {
	reg := NewRegistry()
	sess := New(Config{ID: "s1", LLMFactory: func() (llm.Provider, error) { return &fakeLLMProvider{}, nil }})
	reg.Track(sess.ID(), sess)

	got, ok := reg.Get("s1")
	require.True(t, ok)
	assert.Same(t, sess, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_SweepIdleDisconnectsExclusiveProviders(t *testing.T) {
	reg := NewRegistry()
	provider := newFakeHistoryProvider()

	borrowed := New(Config{ID: "borrowed", ProviderFamily: "openai", LLMFactory: func() (llm.Provider, error) { return &fakeLLMProvider{}, nil }, HistoryProvider: provider})
	require.NoError(t, borrowed.Init())
	reg.Track(borrowed.ID(), borrowed)

	exclusive := New(Config{ID: "exclusive", ProviderFamily: "openai", LLMFactory: func() (llm.Provider, error) { return &fakeLLMProvider{}, nil }})
	require.NoError(t, exclusive.Init())
	// force-bind an owned provider as if history.Select had returned one,
	// so the sweep has something concrete to close.
	owned := newFakeHistoryProvider()
	exclusive.ownedProvider = owned
	reg.Track(exclusive.ID(), exclusive)

	// backdate both entries so the sweep treats them as idle.
	reg.mu.Lock()
	for _, e := range reg.sessions {
		e.lastUsed = time.Now().Add(-time.Hour)
	}
	reg.mu.Unlock()

	reg.sweepIdle(time.Minute)

	assert.False(t, provider.closed, "borrowed provider must survive the idle sweep")
	assert.True(t, owned.closed, "exclusively owned provider must be closed by the idle sweep")

	_, ok := reg.Get("exclusive")
	assert.False(t, ok, "swept sessions must no longer be tracked")
	_, ok = reg.Get("borrowed")
	assert.False(t, ok, "idle borrowed session is also untracked after sweep, just not disconnected")
}

func TestRegistry_TouchPreventsSweep(t *testing.T) {
	reg := NewRegistry()
	owned := newFakeHistoryProvider()
	sess := New(Config{ID: "active", ProviderFamily: "openai", LLMFactory: func() (llm.Provider, error) { return &fakeLLMProvider{}, nil }})
	require.NoError(t, sess.Init())
	sess.ownedProvider = owned
	reg.Track(sess.ID(), sess)

	reg.Touch(sess.ID()) // refresh lastUsed to "now"
	reg.sweepIdle(time.Minute)

	_, ok := reg.Get("active")
	assert.True(t, ok, "recently touched session must survive the sweep")
	assert.False(t, owned.closed)
}

func TestRegistry_StartStopIdleSweep(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.StartIdleSweep("@every 1h", time.Hour))
	// starting twice is a no-op, not an error.
	require.NoError(t, reg.StartIdleSweep("@every 1h", time.Hour))
	reg.StopIdleSweep()
}
