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

// Package protocol defines the wire-agnostic message model shared by the
// context manager, the LLM service, and the history store.
package protocol

import "encoding/json"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ContentBlock is one part of a structured message. It is a closed sum
// type: TextBlock, ImageBlock, ThinkingBlock, RedactedThinkingBlock.
type ContentBlock interface {
	isContentBlock()
}

type TextBlock struct {
	Text string `json:"text"`
}

type ImageBlock struct {
	Data     string `json:"data"`     // base64-encoded image bytes
	MimeType string `json:"mimeType"` // e.g. "image/png"
}

type ThinkingBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

type RedactedThinkingBlock struct {
	Data string `json:"data"`
}

func (TextBlock) isContentBlock()             {}
func (ImageBlock) isContentBlock()             {}
func (ThinkingBlock) isContentBlock()          {}
func (RedactedThinkingBlock) isContentBlock()  {}

// ToolCall is a single function invocation requested by the model.
// Arguments are opaque JSON to the runtime; only the tool implementation
// interprets them.
type ToolCall struct {
	ID       string       `json:"id"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool a ToolCall invokes and carries its raw
// JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn in a conversation.
type Message struct {
	Role       Role           `json:"role"`
	Content    []ContentBlock `json:"content"`
	ToolCalls  []ToolCall     `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	Name       string         `json:"name,omitempty"`
}

// NewTextMessage builds a single-block text message, the common case.
func NewTextMessage(role Role, text string) *Message {
	return &Message{Role: role, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewToolResultMessage builds a tool-result message that must immediately
// follow the assistant message whose ToolCall it satisfies.
func NewToolResultMessage(callID, name, payload string) *Message {
	return &Message{
		Role:       RoleTool,
		Content:    []ContentBlock{TextBlock{Text: payload}},
		ToolCallID: callID,
		Name:       name,
	}
}

// Text concatenates all TextBlock parts of the message, ignoring
// thinking/image blocks. Most callers that need "the text" want this.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// HasToolCalls reports whether the message carries pending tool calls.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// messageJSON is the wire shape used to (de)serialize Message, since
// ContentBlock is an interface and needs explicit type tagging.
type messageJSON struct {
	Role       Role              `json:"role"`
	Content    []json.RawMessage `json:"content"`
	ToolCalls  []ToolCall        `json:"toolCalls,omitempty"`
	ToolCallID string            `json:"toolCallId,omitempty"`
	Name       string            `json:"name,omitempty"`
}

type blockEnvelope struct {
	Type string `json:"type"`
	TextBlock
	ImageBlock
	ThinkingBlock
	RedactedThinkingBlock
}

// MarshalJSON tags each content block with a "type" discriminator.
func (m *Message) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(m.Content))
	for _, b := range m.Content {
		env := blockEnvelope{}
		switch v := b.(type) {
		case TextBlock:
			env.Type = "text"
			env.TextBlock = v
		case ImageBlock:
			env.Type = "image"
			env.ImageBlock = v
		case ThinkingBlock:
			env.Type = "thinking"
			env.ThinkingBlock = v
		case RedactedThinkingBlock:
			env.Type = "redacted_thinking"
			env.RedactedThinkingBlock = v
		default:
			continue
		}
		raw, err := json.Marshal(env)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return json.Marshal(messageJSON{
		Role:       m.Role,
		Content:    raws,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	})
}

// UnmarshalJSON reverses MarshalJSON, dispatching on the "type" tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	m.Role = mj.Role
	m.ToolCalls = mj.ToolCalls
	m.ToolCallID = mj.ToolCallID
	m.Name = mj.Name
	m.Content = make([]ContentBlock, 0, len(mj.Content))
	for _, raw := range mj.Content {
		var env blockEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		switch env.Type {
		case "image":
			m.Content = append(m.Content, env.ImageBlock)
		case "thinking":
			m.Content = append(m.Content, env.ThinkingBlock)
		case "redacted_thinking":
			m.Content = append(m.Content, env.RedactedThinkingBlock)
		default:
			m.Content = append(m.Content, env.TextBlock)
		}
	}
	return nil
}
