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

// Package llmadapter wires internal/llm.Service.DirectGenerate calls
// into the memory and reflection pipelines' LLM-shaped interfaces
// (memory.DecisionLLM, reflection.Detector/Extractor/Evaluator), so
// those packages stay decoupled from any particular LLM provider
// family.
package llmadapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/renegade-studio/matrix/internal/llm"
	"github.com/renegade-studio/matrix/internal/memory"
	"github.com/renegade-studio/matrix/internal/reflection"
	"github.com/renegade-studio/matrix/internal/vectorstore"
)

const decisionSystemPrompt = `You decide whether a newly observed fact should be added to, used to
update, or skipped against an existing knowledge base. Respond with a single
JSON object: {"operation":"ADD|UPDATE|DELETE|NONE","confidence":0.0-1.0,"targetMemoryId":"..."}.`

// DecisionAdapter implements memory.DecisionLLM over an llm.Service's
// directGenerate path (spec.md §4.6 step 3).
type DecisionAdapter struct {
	Service *llm.Service
}

func (a *DecisionAdapter) Decide(ctx context.Context, fact string, similar []vectorstore.SearchResult, mergedContext map[string]any) (memory.Decision, error) {
	if a.Service == nil {
		return memory.Decision{}, fmt.Errorf("llmadapter: no service configured")
	}
	prompt := buildDecisionPrompt(fact, similar, mergedContext)
	text, err := a.Service.DirectGenerate(ctx, decisionSystemPrompt, prompt)
	if err != nil {
		return memory.Decision{}, fmt.Errorf("llmadapter: decision generate: %w", err)
	}
	return memory.ParseDecisionResponse(text)
}

func buildDecisionPrompt(fact string, similar []vectorstore.SearchResult, mergedContext map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New fact: %s\n\n", fact)
	b.WriteString("Top similar memories:\n")
	limit := len(similar)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "%d. (score=%.3f, id=%s) %s\n", i+1, similar[i].Score, similar[i].ID, similar[i].Content)
	}
	if sessionID, ok := mergedContext["sessionId"]; ok {
		fmt.Fprintf(&b, "\nSession: %v\n", sessionID)
	}
	return b.String()
}

const detectorSystemPrompt = `Judge whether the user's message contains a multi-step reasoning
process worth reflecting on later. Respond with JSON:
{"containsReasoning":true|false,"confidence":0.0-1.0}.`

// Detector implements reflection.Detector over an llm.Service.
type Detector struct {
	Service *llm.Service
}

type detectorPayload struct {
	ContainsReasoning bool    `json:"containsReasoning"`
	Confidence        float64 `json:"confidence"`
}

func (d *Detector) Detect(ctx context.Context, text string) (bool, float64, error) {
	out, err := d.Service.DirectGenerate(ctx, detectorSystemPrompt, text)
	if err != nil {
		return false, 0, fmt.Errorf("llmadapter: detect: %w", err)
	}
	var payload detectorPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &payload); err != nil {
		return false, 0, fmt.Errorf("llmadapter: detect: parse response: %w", err)
	}
	return payload.ContainsReasoning, payload.Confidence, nil
}

const extractorSystemPrompt = `Extract the distinct reasoning steps implicit in the user's message as
a numbered list, one step per line ("1. ...", "2. ..."). If there is no
multi-step reasoning, respond with an empty message.`

// Extractor implements reflection.Extractor over an llm.Service.
type Extractor struct {
	Service *llm.Service
}

func (e *Extractor) Extract(ctx context.Context, text string) ([]reflection.ReasoningStep, error) {
	out, err := e.Service.DirectGenerate(ctx, extractorSystemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("llmadapter: extract: %w", err)
	}
	return parseNumberedSteps(out), nil
}

func parseNumberedSteps(text string) []reflection.ReasoningStep {
	var steps []reflection.ReasoningStep
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx, desc, ok := splitNumberedLine(line)
		if !ok {
			continue
		}
		steps = append(steps, reflection.ReasoningStep{Index: idx, Description: desc})
	}
	return steps
}

func splitNumberedLine(line string) (int, string, bool) {
	dot := strings.IndexAny(line, ".)")
	if dot <= 0 {
		return 0, "", false
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[:dot]))
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(line[dot+1:]), true
}

const evaluatorSystemPrompt = `Evaluate the quality of this reasoning trace. Respond with JSON:
{"qualityScore":0.0-1.0,"shouldStore":true|false,"issues":["..."],"suggestions":["..."]}.`

// Evaluator implements reflection.Evaluator over an llm.Service, built
// from a distinct (typically non-thinking) model per spec.md §4.7.
type Evaluator struct {
	Service *llm.Service
}

func (e *Evaluator) Evaluate(ctx context.Context, steps []reflection.ReasoningStep) (reflection.Evaluation, error) {
	var trace strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&trace, "%d. %s\n", s.Index, s.Description)
	}
	out, err := e.Service.DirectGenerate(ctx, evaluatorSystemPrompt, trace.String())
	if err != nil {
		return reflection.Evaluation{}, fmt.Errorf("llmadapter: evaluate: %w", err)
	}
	var evaluation reflection.Evaluation
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &evaluation); err != nil {
		return reflection.Evaluation{}, fmt.Errorf("llmadapter: evaluate: parse response: %w", err)
	}
	return evaluation, nil
}
