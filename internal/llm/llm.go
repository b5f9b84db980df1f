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

// Package llm implements the tool-calling LLM service (spec.md §4.4):
// a provider-agnostic Generate/DirectGenerate surface backed by
// per-family SDK clients, plus the iteration/retry loop that drives a
// conversation through tool calls to a final answer.
package llm

import (
	"context"
	"encoding/json"

	"github.com/renegade-studio/matrix/internal/protocol"
)

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToolDefinition is the provider-agnostic shape of a callable tool,
// translated from internal/tools.Info at the call site.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ThinkingBlock carries extended/reasoning output some providers
// return alongside the final text. Only the Anthropic provider fills
// it (extended thinking); the OpenAI and Gemini providers leave it nil.
type ThinkingBlock struct {
	Text      string
	Signature string
}

// Response is the result of one non-streaming LLM call.
type Response struct {
	Text      string
	ToolCalls []protocol.ToolCall
	Tokens    int
	Thinking  *ThinkingBlock
}

// Provider is implemented by each LLM family integration.
type Provider interface {
	Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (Response, error)
	ModelName() string
	MaxTokens() int
	Temperature() float64
	Close() error
}
