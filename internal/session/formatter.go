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
	"log/slog"
	"strings"

	"github.com/renegade-studio/matrix/internal/contextmgr"
)

// openAIShapedFamily, azureFamily, and anthropicFamily are the three
// formatter groups spec.md §4.1 names. Matrix's wire format
// (internal/protocol.Message) is already provider-agnostic and the
// per-SDK shaping happens inside internal/llm, so all three groups
// resolve to the same contextmgr.PassthroughFormatter today; the
// grouping is kept here (rather than collapsed into "always
// passthrough") so a future provider family that genuinely needs
// different merge-at-send-time behavior has somewhere to plug in
// without touching call sites.
var (
	openAIShapedFamily = map[string]bool{
		"openai": true, "openrouter": true, "ollama": true, "lmstudio": true, "qwen": true, "gemini": true,
	}
	azureFamily = map[string]bool{"azure": true}
	anthropicFamily = map[string]bool{"anthropic": true, "aws": true}
)

// selectFormatter implements spec.md §4.1's provider-string matching:
// lowercase, match against the three known families, else
// UnsupportedProvider. When maxContextTokens is positive, the family
// formatter is wrapped in a TokenWindowFormatter so
// GetFormattedMessage returns truncated, budget-fitting history
// instead of the raw transcript (spec.md §4.2).
func selectFormatter(providerType, model string, maxContextTokens int) (contextmgr.Formatter, error) {
	lower := strings.ToLower(strings.TrimSpace(providerType))
	var base contextmgr.Formatter
	switch {
	case openAIShapedFamily[lower], azureFamily[lower], anthropicFamily[lower]:
		base = contextmgr.PassthroughFormatter{}
	default:
		return nil, &UnsupportedProvider{Provider: providerType}
	}

	if maxContextTokens <= 0 {
		return base, nil
	}
	counter, err := contextmgr.NewTokenCounter(model)
	if err != nil {
		slog.Warn("session: token counter unavailable, history will not be windowed", "model", model, "error", err)
		return base, nil
	}
	return contextmgr.NewTokenWindowFormatter(base, counter, maxContextTokens), nil
}
