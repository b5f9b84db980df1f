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

package contextmgr

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/renegade-studio/matrix/internal/protocol"
)

// tokensPerMessage approximates the <|start|>role|message<|end|>
// framing overhead tiktoken doesn't otherwise account for.
const tokensPerMessage = 3

// TokenCounter counts tokens for a model's encoding, caching the
// tiktoken encoding across calls since construction is not free.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.RWMutex
)

// NewTokenCounter builds a counter for model, falling back to the
// cl100k_base encoding (GPT-4/3.5-turbo family) when the model isn't
// recognized by tiktoken-go.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingCacheMu.RLock()
	cached, ok := encodingCache[model]
	encodingCacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("contextmgr: get token encoding: %w", err)
		}
	}

	encodingCacheMu.Lock()
	encodingCache[model] = enc
	encodingCacheMu.Unlock()
	return &TokenCounter{encoding: enc}, nil
}

func (c *TokenCounter) count(text string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.encoding.Encode(text, nil, nil))
}

func (c *TokenCounter) countMessage(msg *protocol.Message) int {
	return tokensPerMessage + c.count(string(msg.Role)) + c.count(msg.Text())
}

// TokenWindowFormatter wraps an inner Formatter and truncates the
// transcript to the most recent messages that fit within maxTokens,
// always keeping the system prompt the inner formatter prepends
// (spec.md §4.2's "compressed/truncated history" contract). Messages
// are dropped oldest-first, matching spec.md §9's buffer-window
// re-architecture guidance.
type TokenWindowFormatter struct {
	inner     Formatter
	counter   *TokenCounter
	maxTokens int
}

// NewTokenWindowFormatter builds a window over inner. maxTokens <= 0
// disables windowing (the formatter degrades to inner unchanged).
func NewTokenWindowFormatter(inner Formatter, counter *TokenCounter, maxTokens int) *TokenWindowFormatter {
	if inner == nil {
		inner = PassthroughFormatter{}
	}
	return &TokenWindowFormatter{inner: inner, counter: counter, maxTokens: maxTokens}
}

func (f *TokenWindowFormatter) Format(systemPrompt string, messages []*protocol.Message) []*protocol.Message {
	if f.maxTokens <= 0 || f.counter == nil {
		return f.inner.Format(systemPrompt, messages)
	}

	budget := f.maxTokens
	if systemPrompt != "" {
		budget -= f.counter.count(systemPrompt) + tokensPerMessage
	}

	fitted := make([]*protocol.Message, 0, len(messages))
	used := 0
	for i := len(messages) - 1; i >= 0; i-- {
		cost := f.counter.countMessage(messages[i])
		if used+cost > budget && len(fitted) > 0 {
			break
		}
		fitted = append(fitted, messages[i])
		used += cost
	}
	for i, j := 0, len(fitted)-1; i < j; i, j = i+1, j-1 {
		fitted[i], fitted[j] = fitted[j], fitted[i]
	}

	return f.inner.Format(systemPrompt, fitted)
}
