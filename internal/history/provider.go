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

// Package history implements the durable transcript backing store: a
// SQL-backed database provider, a write-ahead-log provider, and a
// multi-backend composite that fans writes out to both.
package history

import (
	"context"
	"time"

	"github.com/renegade-studio/matrix/internal/protocol"
)

// Provider is the durable transcript store a session binds to.
// Implementations (database, WAL, multi-backend) must be safe for
// concurrent use by sessions sharing the same backend.
type Provider interface {
	AppendMessage(ctx context.Context, sessionID string, msg *protocol.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]*protocol.Message, error)
	GetMessageCount(ctx context.Context, sessionID string) (int, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}

// Metadata tracks per-session bookkeeping the session runtime needs
// alongside the raw transcript.
type Metadata struct {
	SessionID      string
	CreatedAt      time.Time
	LastActivity   time.Time
	HistoryEnabled bool
	HistoryBackend string
}
