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

// Package reflection implements the reflection memory pipeline
// (spec.md §4.7): gated extraction of reasoning steps from user
// input, quality evaluation by a distinct LLM, and conditional
// storage in the reflection collection.
package reflection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/embedder"
	"github.com/renegade-studio/matrix/internal/events"
	"github.com/renegade-studio/matrix/internal/vectorstore"
)

// ReasoningStep is one parsed step of a user's reasoning trace.
type ReasoningStep struct {
	Index       int
	Description string
}

// Evaluation is the evaluator LLM's verdict on a reasoning trace.
type Evaluation struct {
	QualityScore float64
	ShouldStore  bool
	Issues       []string
	Suggestions  []string
}

// Detector flags whether a piece of text contains reasoning worth
// reflecting on, and with what confidence.
type Detector interface {
	Detect(ctx context.Context, text string) (containsReasoning bool, confidence float64, err error)
}

// Extractor turns raw user input into a sequence of reasoning steps.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]ReasoningStep, error)
}

// Evaluator scores a reasoning trace using a distinct LLM service
// (spec.md §4.7 step 2, "typically a non-thinking model").
type Evaluator interface {
	Evaluate(ctx context.Context, steps []ReasoningStep) (Evaluation, error)
}

// Pipeline wires a Detector, Extractor, and Evaluator to the
// knowledge memory vector store, storing only traces judged worth
// keeping.
type Pipeline struct {
	detector          Detector
	extractor         Extractor
	evaluator         Evaluator
	vecStore          vectorstore.Provider
	embed             embedder.Provider
	collection        string
	bus               *events.Bus
	detectorThreshold float64

	toolsPresent func() bool
}

func NewPipeline(detector Detector, extractor Extractor, evaluator Evaluator, vecStore vectorstore.Provider, embed embedder.Provider, collection string, bus *events.Bus, detectorThreshold float64, toolsPresent func() bool) *Pipeline {
	if collection == "" {
		collection = "matrix_reflection"
	}
	if detectorThreshold == 0 {
		detectorThreshold = 0.6
	}
	return &Pipeline{
		detector: detector, extractor: extractor, evaluator: evaluator,
		vecStore: vecStore, embed: embed, collection: collection, bus: bus,
		detectorThreshold: detectorThreshold, toolsPresent: toolsPresent,
	}
}

// Gated reports whether the pipeline should run at all for this turn
// (spec.md §4.7's four gates, minus the embeddings-enabled check,
// which the caller — internal/session — makes against the knowledge
// pipeline before calling Gated).
func (p *Pipeline) Gated(ctx context.Context, userInput string) bool {
	if config.BoolEnv("DISABLE_REFLECTION_MEMORY") {
		return false
	}
	if p.toolsPresent != nil && !p.toolsPresent() {
		return false
	}
	if p.detector == nil {
		return false
	}
	contains, confidence, err := p.detector.Detect(ctx, userInput)
	if err != nil {
		slog.Warn("reflection: detector failed", "error", err)
		return false
	}
	return contains && confidence >= p.detectorThreshold
}

// Run executes steps 1-3. Every step is independently wrapped: a
// failure surfaces to logs and the event bus only, never to the
// caller, so reflection never affects the foreground response.
func (p *Pipeline) Run(ctx context.Context, userInput string) {
	steps, err := p.extractor.Extract(ctx, userInput)
	if err != nil {
		p.logAndPublish("extract", err)
		return
	}
	if len(steps) == 0 {
		return
	}

	evaluation, err := p.evaluator.Evaluate(ctx, steps)
	if err != nil {
		p.logAndPublish("evaluate", err)
		return
	}

	if !evaluation.ShouldStore {
		return
	}

	if err := p.store(ctx, steps, evaluation); err != nil {
		p.logAndPublish("store", err)
	}
}

func (p *Pipeline) store(ctx context.Context, steps []ReasoningStep, evaluation Evaluation) error {
	trace := traceText(steps)
	vector, err := p.embed.Embed(ctx, trace)
	if err != nil {
		return fmt.Errorf("reflection: embed trace: %w", err)
	}

	metadata := map[string]any{
		"content":       trace,
		"qualityScore":  evaluation.QualityScore,
		"issues":        evaluation.Issues,
		"suggestions":   evaluation.Suggestions,
		"stepCount":     len(steps),
	}

	if err := p.vecStore.Upsert(ctx, p.collection, nextReflectionID(), vector, metadata); err != nil {
		return fmt.Errorf("reflection: persist trace: %w", err)
	}
	return nil
}

func traceText(steps []ReasoningStep) string {
	out := ""
	for _, s := range steps {
		out += fmt.Sprintf("%d. %s\n", s.Index, s.Description)
	}
	return out
}

func (p *Pipeline) logAndPublish(step string, err error) {
	slog.Warn("reflection pipeline step failed", "step", step, "error", err)
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Envelope{
		Type: events.EventMemoryOperationFail,
		Data: map[string]any{"pipeline": "reflection", "step": step, "error": err.Error()},
	})
}
