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

// Package memory implements the knowledge memory pipeline (spec.md
// §4.6): per-fact ADD/UPDATE/DELETE/NONE decisions against a vector
// store, gated by confidence and backed by an optional LLM decision
// service.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/embedder"
	"github.com/renegade-studio/matrix/internal/events"
	"github.com/renegade-studio/matrix/internal/vectorstore"
)

// QualitySource records which decision path produced a memory action
// (spec.md §3's MemoryEntry.qualitySource): the LLM decision service,
// the similarity-only fallback table, or the embedding-failure
// heuristic (always ADD @ 0.6).
const (
	QualitySourceLLM        = "llm"
	QualitySourceSimilarity = "similarity"
	QualitySourceHeuristic  = "heuristic"
)

// Operation is the decision made for one extracted fact.
type Operation string

const (
	OpAdd    Operation = "ADD"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpNone   Operation = "NONE"
)

// Decision is the outcome of the per-fact decision engine.
type Decision struct {
	Operation      Operation
	Confidence     float64
	TargetMemoryID string
	OldMemory      string
	QualitySource  string
}

// DecisionLLM prompts an LLM with a fact and its similar memories and
// returns a tolerant-parsed decision. cmd/matrixd wires this to
// llmadapter.DecisionAdapter, which calls llm.Service.DirectGenerate;
// it is an interface here so the
// memory package stays decoupled from the LLM family.
type DecisionLLM interface {
	Decide(ctx context.Context, fact string, similar []vectorstore.SearchResult, mergedContext map[string]any) (Decision, error)
}

// Pipeline implements the knowledge memory pipeline described in
// spec.md §4.6.
type Pipeline struct {
	mu               sync.Mutex
	vecStore         vectorstore.Provider
	embed            embedder.Provider
	collection       string
	decisionLLM      DecisionLLM
	cfg              config.MemoryConfig
	bus              *events.Bus
	embeddingsDown   bool
}

func NewPipeline(vecStore vectorstore.Provider, embed embedder.Provider, collection string, decisionLLM DecisionLLM, cfg config.MemoryConfig, bus *events.Bus) *Pipeline {
	cfg.SetDefaults()
	return &Pipeline{vecStore: vecStore, embed: embed, collection: collection, decisionLLM: decisionLLM, cfg: cfg, bus: bus}
}

// EmbeddingsEnabled reports whether the pipeline should run at all: it
// is false when no embedder is set or once one of this Pipeline's Embed
// calls has failed. The flag belongs to this Pipeline instance, not to
// the process; other Pipeline instances are unaffected by it.
func (p *Pipeline) EmbeddingsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.embeddingsDown && p.embed != nil
}

func (p *Pipeline) disableEmbeddings() {
	p.mu.Lock()
	p.embeddingsDown = true
	p.mu.Unlock()
}

// CollectInteraction implements step 1: an ordered list of strings
// summarizing the latest turn.
func CollectInteraction(userText string, toolCallSummaries, toolResultSummaries []string, assistantText string) []string {
	out := make([]string, 0, 2+len(toolCallSummaries)+len(toolResultSummaries))
	if userText != "" {
		out = append(out, userText)
	}
	out = append(out, toolCallSummaries...)
	out = append(out, toolResultSummaries...)
	if assistantText != "" {
		out = append(out, assistantText)
	}
	return out
}

// SummarizeToolCall builds the "name with key=value" one-liner from
// spec.md §4.6 step 1.
func SummarizeToolCall(name string, args map[string]any) string {
	parts := make([]string, 0, len(args))
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if len(parts) == 0 {
		return name
	}
	return fmt.Sprintf("%s with %s", name, strings.Join(parts, ", "))
}

// ProcessFacts runs step 2's fact extraction over the raw interaction
// strings, then the per-fact decision engine (step 3) and persistence
// (step 4) over every extracted fact in order, so later decisions see
// the vector-store effects of earlier ones (step 5).
func (p *Pipeline) ProcessFacts(ctx context.Context, interaction []string, mergedContext map[string]any) error {
	for _, fact := range ExtractFacts(interaction) {
		if err := p.processFact(ctx, fact, mergedContext); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) processFact(ctx context.Context, fact Fact, mergedContext map[string]any) error {
	vector, err := p.embed.Embed(ctx, fact.Text)
	if err != nil {
		p.disableEmbeddings()
		p.publishFailure(fact.Text, err)
		// The fact's own embedding already failed, so there is no vector
		// to persist with; store degraded (nil vector) rather than
		// trying to embed the same broken backend a second time.
		return p.persist(ctx, Decision{Operation: OpAdd, Confidence: 0.6, QualitySource: QualitySourceHeuristic}, fact, nil)
	}

	results, err := p.vecStore.Search(ctx, p.collection, vector, p.cfg.MaxSimilarResults)
	if err != nil {
		return fmt.Errorf("memory: search similar facts: %w", err)
	}

	similar := make([]vectorstore.SearchResult, 0, len(results))
	for _, r := range results {
		if float64(r.Score) >= p.cfg.SimilarityThreshold {
			similar = append(similar, r)
		}
	}

	decision, err := p.decide(ctx, fact.Text, similar, mergedContext)
	if err != nil {
		return fmt.Errorf("memory: decide for fact: %w", err)
	}

	if decision.Operation == OpDelete && !p.cfg.DeleteOperationsEnabled() {
		decision.Operation = OpNone
	}
	if decision.Confidence < p.cfg.ConfidenceThreshold {
		decision.Operation = OpNone
	}

	return p.persist(ctx, decision, fact, vector)
}

func (p *Pipeline) decide(ctx context.Context, fact string, similar []vectorstore.SearchResult, mergedContext map[string]any) (Decision, error) {
	if p.cfg.UseLLMDecisionsEnabled() && p.decisionLLM != nil {
		decision, err := p.decisionLLM.Decide(ctx, fact, similar, mergedContext)
		if err == nil {
			decision.QualitySource = QualitySourceLLM
			return decision, nil
		}
		// tolerant-parse failure: fall through to similarity-only fallback
	}
	return similarityOnlyDecision(similar, p.cfg.SimilarityThreshold), nil
}

// similarityOnlyDecision implements spec.md §4.6's fallback table.
func similarityOnlyDecision(similar []vectorstore.SearchResult, threshold float64) Decision {
	if len(similar) == 0 {
		return Decision{Operation: OpAdd, Confidence: 0.8, QualitySource: QualitySourceSimilarity}
	}
	top := similar[0]
	switch {
	case top.Score > 0.9:
		return Decision{Operation: OpNone, Confidence: 0.9, QualitySource: QualitySourceSimilarity}
	case float64(top.Score) > threshold:
		return Decision{Operation: OpUpdate, Confidence: 0.75, TargetMemoryID: top.ID, OldMemory: top.Content, QualitySource: QualitySourceSimilarity}
	default:
		return Decision{Operation: OpAdd, Confidence: 0.7, QualitySource: QualitySourceSimilarity}
	}
}

// persist implements step 4: for ADD/UPDATE, call insert/update with
// vector (the same embedding already produced for the fact; there is
// no separate "action text" embedding step once the fact text and the
// embedded text are the same string). DELETE and NONE skip
// persistence; whether a DELETE decision is even reachable is gated
// earlier by p.cfg.DeleteOperationsEnabled().
func (p *Pipeline) persist(ctx context.Context, decision Decision, fact Fact, vector []float32) error {
	switch decision.Operation {
	case OpAdd, OpUpdate:
	default:
		return nil
	}

	id := decision.TargetMemoryID
	if id == "" {
		id = nextKnowledgeID()
	}

	metadata := map[string]any{
		"content":       fact.Text,
		"tags":          fact.Tags,
		"confidence":    decision.Confidence,
		"event":         string(decision.Operation),
		"qualitySource": decision.QualitySource,
	}
	if fact.CodePattern != "" {
		metadata["codePattern"] = fact.CodePattern
	}
	if decision.OldMemory != "" {
		metadata["oldMemory"] = decision.OldMemory
	}

	if err := p.vecStore.Upsert(ctx, p.collection, id, vector, metadata); err != nil {
		return fmt.Errorf("memory: persist fact: %w", err)
	}
	return nil
}

func (p *Pipeline) publishFailure(fact string, err error) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Envelope{
		Type:     events.EventMemoryOperationFail,
		Data:     map[string]any{"fact": fact, "error": err.Error(), "at": time.Now()},
	})
}
