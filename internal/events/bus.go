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

// Package events implements the service-level and session-level event
// bus described in spec.md §4.8: non-durable, in-process fan-out that
// the metrics collector (and any other subscriber) consumes.
package events

import (
	"sync"
	"time"
)

// Envelope is the wire shape of an event on the bus (spec.md §6).
type Envelope struct {
	ID       string
	Type     string
	Data     any
	Metadata Metadata
}

type Metadata struct {
	Timestamp      time.Time
	SessionID      string
	Source         string
	Priority       int
	Tags           []string
	EventManagerID string
}

// Handler receives events. Handlers must not block the publishing
// goroutine (spec.md §5, "Shared mutable resources").
type Handler func(Envelope)

// Bus is a minimal pub/sub fan-out. One Bus instance backs both the
// process-scoped service bus and each session-scoped bus; session
// scoping is achieved by filtering on Envelope.Metadata.SessionID at
// subscribe time via WithSessionID.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event type. eventType == "*"
// subscribes to everything.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish fans out env to every matching handler. Publish never blocks
// on a slow handler for longer than the handler itself takes to
// return; handlers that need to do blocking work must dispatch to
// their own goroutine.
func (b *Bus) Publish(env Envelope) {
	if env.Metadata.Timestamp.IsZero() {
		env.Metadata.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers[env.Type] {
		h(env)
	}
	for _, h := range b.handlers["*"] {
		h(env)
	}
}

// WithSessionID wraps a handler so it fires for events scoped to the
// given session id and for events that carry no session id, and skips
// events scoped to any other session, implementing the session-level bus semantics
// from spec.md §4.8 on top of a single process-wide Bus.
func WithSessionID(sessionID string, h Handler) Handler {
	return func(env Envelope) {
		if env.Metadata.SessionID != "" && env.Metadata.SessionID != sessionID {
			return
		}
		h(env)
	}
}

// Well-known event types emitted by the session runtime and LLM
// service (spec.md §2 step 3, §4.4).
const (
	EventLLMThinking          = "llm:thinking"
	EventLLMResponseStarted   = "llm:responseStarted"
	EventLLMResponseCompleted = "llm:responseCompleted"
	EventMemoryOperationFail  = "memory:operationFailed"
	EventToolExecutionError   = "tool:executionError"
)
