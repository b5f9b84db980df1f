// Copyright 2025 Renegade Studio
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package contextmgr holds the ordered transcript for a session,
// merges the system prompt at send-time, delegates per-provider
// message shaping to a Formatter, and mediates with the history store
// (spec.md §4.2).
package contextmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/renegade-studio/matrix/internal/history"
	"github.com/renegade-studio/matrix/internal/protocol"
)

// Formatter owns the per-provider shaping difference named in
// spec.md §4.4: Anthropic-family requests carry structured content
// arrays; OpenAI-family concatenate text and use tool_calls. The
// context manager never inspects content blocks directly.
type Formatter interface {
	Format(systemPrompt string, messages []*protocol.Message) []*protocol.Message
}

// PassthroughFormatter returns messages unchanged aside from
// prepending the system prompt; it is correct for every provider
// family this module targets, since protocol.Message is already the
// provider-agnostic wire shape and per-SDK translation happens inside
// internal/llm.
type PassthroughFormatter struct{}

func (PassthroughFormatter) Format(systemPrompt string, messages []*protocol.Message) []*protocol.Message {
	if systemPrompt == "" {
		return messages
	}
	out := make([]*protocol.Message, 0, len(messages)+1)
	out = append(out, protocol.NewTextMessage(protocol.RoleSystem, systemPrompt))
	out = append(out, messages...)
	return out
}

// Manager is the session-scoped transcript.
type Manager struct {
	mu           sync.Mutex
	sessionID    string
	systemPrompt string
	formatter    Formatter
	provider     history.Provider
	messages     []*protocol.Message
}

func New(sessionID, systemPrompt string, formatter Formatter, provider history.Provider) *Manager {
	if formatter == nil {
		formatter = PassthroughFormatter{}
	}
	return &Manager{sessionID: sessionID, systemPrompt: systemPrompt, formatter: formatter, provider: provider}
}

// BindProvider attaches (or replaces) the history provider, used by
// refreshConversationHistory's "re-bind the provider" step.
func (m *Manager) BindProvider(provider history.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provider = provider
}

func (m *Manager) append(ctx context.Context, msg *protocol.Message) error {
	m.messages = append(m.messages, msg)
	if m.provider == nil {
		return nil
	}
	if err := m.provider.AppendMessage(ctx, m.sessionID, msg); err != nil {
		return fmt.Errorf("contextmgr: persist message: %w", err)
	}
	return nil
}

// AddUserMessage appends a user message, durably saving it before
// returning (spec.md §4.2's invariant).
func (m *Manager) AddUserMessage(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.append(ctx, protocol.NewTextMessage(protocol.RoleUser, text))
}

// AddAssistantMessage appends an assistant turn, optionally carrying
// tool calls the LLM requested.
func (m *Manager) AddAssistantMessage(ctx context.Context, text string, toolCalls []protocol.ToolCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := protocol.NewTextMessage(protocol.RoleAssistant, text)
	msg.ToolCalls = toolCalls
	return m.append(ctx, msg)
}

// AddToolResult appends the outcome of one tool invocation.
func (m *Manager) AddToolResult(ctx context.Context, callID, name, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.append(ctx, protocol.NewToolResultMessage(callID, name, payload))
}

// GetFormattedMessage returns the full provider-ready message array:
// system prompt merged with the transcript, plus the new user message
// if one is supplied (pass "" to just format the existing transcript).
func (m *Manager) GetFormattedMessage(userMsg string) []*protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages
	if userMsg != "" {
		msgs = append(append([]*protocol.Message(nil), msgs...), protocol.NewTextMessage(protocol.RoleUser, userMsg))
	}
	return m.formatter.Format(m.systemPrompt, msgs)
}

// GetRawMessages returns the unformatted transcript as stored.
func (m *Manager) GetRawMessages() []*protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*protocol.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// RestoreHistory loads the transcript from the bound history
// provider, replacing whatever is currently held in memory.
func (m *Manager) RestoreHistory(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.provider == nil {
		return fmt.Errorf("contextmgr: no history provider bound")
	}
	msgs, err := m.provider.GetMessages(ctx, m.sessionID, 0)
	if err != nil {
		return fmt.Errorf("contextmgr: restore history: %w", err)
	}
	m.messages = msgs
	return nil
}

// SetMessages bulk-replaces the in-memory transcript without touching
// the history provider (the "bulk setMessages" restoration strategy).
func (m *Manager) SetMessages(list []*protocol.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = list
}

// ClearMessages empties the in-memory transcript.
func (m *Manager) ClearMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}
