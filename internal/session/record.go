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

package session

import (
	"time"

	"github.com/renegade-studio/matrix/internal/protocol"
)

// recordVersion is the constant every HistoryRecord is stamped with
// (spec.md §6). Bump it whenever the record shape changes in a way
// that isn't backward-compatible.
const recordVersion = 1

// HistoryRecord is the persisted session record described in spec.md
// §6. Functions (formatters, merge hooks) are never part of it; a
// caller rebuilding a Session from a record must re-supply them via
// Services.
type HistoryRecord struct {
	ID                 string             `json:"id"`
	Metadata           map[string]any     `json:"metadata,omitempty"`
	ConversationHistory []*protocol.Message `json:"conversationHistory"`
	Options            map[string]any     `json:"options,omitempty"`
	Version            int                `json:"version"`
	SerializedAt        time.Time         `json:"serializedAt"`
}
