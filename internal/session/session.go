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

// Package session is the runtime that ties the context manager, the
// history store, the LLM tool-calling loop, and the memory/reflection
// pipelines together into a single conversational turn (spec.md
// §4.1).
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/renegade-studio/matrix/internal/contextmgr"
	"github.com/renegade-studio/matrix/internal/events"
	"github.com/renegade-studio/matrix/internal/history"
	"github.com/renegade-studio/matrix/internal/llm"
	"github.com/renegade-studio/matrix/internal/memory"
	"github.com/renegade-studio/matrix/internal/protocol"
	"github.com/renegade-studio/matrix/internal/reflection"
	"github.com/renegade-studio/matrix/internal/tools"
)

// storageOwnership tags whether a session's history provider is one it
// built itself (and must tear down) or one it was merely handed
// (shared across sessions, never closed by this session). Spec.md §9's
// re-architecture note asks for this to be explicit rather than
// inferred.
type storageOwnership int

const (
	storageExclusive storageOwnership = iota
	storageBorrowed
)

// ImageData is the optional image attachment a turn may carry.
type ImageData struct {
	Image    string // base64-encoded bytes
	MimeType string
}

// RunOptions carries the optional knobs to run().
type RunOptions struct {
	Image   *ImageData
	Stream  bool
	Options map[string]any
}

// RunResult is what run() hands back: the foreground response plus a
// handle to the background memory/reflection work, already under way.
type RunResult struct {
	Response            string
	BackgroundOperations *BackgroundJob
}

// LLMFactory lazily builds the provider a session's LLM service talks
// to. Deferred to first run() call per spec.md §4.1's lazy-init
// protocol, so constructing a Session never itself dials a provider.
type LLMFactory func() (llm.Provider, error)

// Config is everything New needs to assemble a session. ID,
// ProviderFamily and LLMFactory are required (an empty or unknown
// ProviderFamily makes Init fail); everything else has a sensible zero
// value.
type Config struct {
	ID              string
	ProviderFamily  string // matched against spec.md §4.1's formatter groups
	ProviderName    string // passed through to the tool manager's per-provider shaping
	Model           string // used to select the tiktoken encoding for history windowing
	SystemPrompt    string
	LLMFactory      LLMFactory
	MaxIterations   int

	// MaxContextTokens bounds the formatted transcript handed to the
	// provider (spec.md §4.2). 0 disables windowing.
	MaxContextTokens int

	ToolManager *tools.Manager
	Bus         *events.Bus
	Metrics     *events.Metrics

	// HistoryProvider, if set, is borrowed: this session uses it but
	// never closes it. If nil, StorageConfig is used to lazily build
	// one this session owns exclusively and will close on disconnect().
	HistoryProvider history.Provider
	StorageConfig   history.StorageConfig

	MemoryPipeline     *memory.Pipeline
	ReflectionPipeline *reflection.Pipeline
}

// Session is one logical conversation. All exported methods are safe
// for concurrent use, though spec.md §5 expects at most one run() per
// session id in flight at a time; callers wanting concurrency issue
// parallel run()s against distinct session ids instead.
type Session struct {
	mu sync.Mutex

	id               string
	providerFamily   string
	providerName     string
	model            string
	systemPrompt     string
	maxIterations    int
	maxContextTokens int

	toolMgr *tools.Manager
	bus     *events.Bus
	metrics *events.Metrics

	ctxMgr           *contextmgr.Manager
	historyOwner     storageOwnership
	storageCfg       history.StorageConfig
	borrowedProvider history.Provider
	ownedProvider    history.Provider

	llmFactory LLMFactory
	llmSvc     *llm.Service

	memoryPipeline     *memory.Pipeline
	reflectionPipeline *reflection.Pipeline

	llmGuard     lazyGuard
	historyGuard lazyGuard

	initialized  bool
	lastSnapshot []*protocol.Message
}

// New constructs a session. Nothing here touches the network; init()
// and the lazy guards inside run() do that.
func New(cfg Config) *Session {
	ownership := storageBorrowed
	if cfg.HistoryProvider == nil {
		ownership = storageExclusive
	}
	borrowed := cfg.HistoryProvider
	if ownership == storageExclusive {
		borrowed = nil
	}
	return &Session{
		id:                 cfg.ID,
		providerFamily:     cfg.ProviderFamily,
		providerName:       cfg.ProviderName,
		model:              cfg.Model,
		systemPrompt:       cfg.SystemPrompt,
		maxIterations:      cfg.MaxIterations,
		maxContextTokens:   cfg.MaxContextTokens,
		toolMgr:            cfg.ToolManager,
		bus:                cfg.Bus,
		metrics:            cfg.Metrics,
		historyOwner:       ownership,
		storageCfg:         cfg.StorageConfig,
		llmFactory:         cfg.LLMFactory,
		memoryPipeline:     cfg.MemoryPipeline,
		reflectionPipeline: cfg.ReflectionPipeline,
		borrowedProvider:   borrowed,
	}
}

// ID returns the session's identifier, as supplied in Config.
func (s *Session) ID() string {
	return s.id
}

// Init sets up the context manager with the correct provider formatter
// and, if a shared (borrowed) history provider was supplied, binds it
// immediately. Idempotent: calling it again after success is a no-op.
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	formatter, err := selectFormatter(s.providerFamily, s.model, s.maxContextTokens)
	if err != nil {
		return err
	}

	s.ctxMgr = contextmgr.New(s.id, s.systemPrompt, formatter, s.borrowedProvider)
	s.initialized = true
	return nil
}

// Run validates input, lazily builds the LLM service and restores
// history on first call, drives the tool-calling loop for one turn,
// and starts the memory/reflection background job before returning.
func (s *Session) Run(ctx context.Context, input string, opts RunOptions) (*RunResult, error) {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		return nil, &NotInitialized{}
	}

	if input == "" {
		return nil, &UserInputInvalid{Reason: "input must be non-empty"}
	}
	if opts.Image != nil && (opts.Image.Image == "" || opts.Image.MimeType == "") {
		return nil, &UserInputInvalid{Reason: "image data requires both image and mimeType"}
	}

	if err := s.llmGuard.once(func() error { return s.buildLLMService() }); err != nil {
		return nil, fmt.Errorf("session: lazy llm init: %w", err)
	}
	if err := s.historyGuard.once(func() error { return s.restoreHistoryLazily(ctx) }); err != nil {
		return nil, fmt.Errorf("session: lazy history init: %w", err)
	}

	before := s.ctxMgr.GetRawMessages()

	// Generate drives the full §4.4 loop, including its own
	// llm:thinking / llm:responseStarted / llm:responseCompleted
	// emissions; run()'s contract names an llm:thinking emission as
	// part of invoking the LLM service, not as a second, separate one.
	response, err := s.llmSvc.Generate(ctx, s.id, s.ctxMgr, input)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastSnapshot = s.ctxMgr.GetRawMessages()
	s.mu.Unlock()

	after := s.ctxMgr.GetRawMessages()
	toolCalls, toolResults := summarizeLatestTurn(after[len(before):])

	job, jobCtx := newBackgroundJob(context.WithoutCancel(ctx))
	job.Go(func() error { return s.runKnowledgeMemory(jobCtx, input, response, toolCalls, toolResults) })
	job.Go(func() error { s.runReflection(jobCtx, input); return nil })

	return &RunResult{Response: response, BackgroundOperations: job}, nil
}

func (s *Session) buildLLMService() error {
	if s.llmFactory == nil {
		return fmt.Errorf("session: no llm factory configured")
	}
	provider, err := s.llmFactory()
	if err != nil {
		return fmt.Errorf("session: build llm provider: %w", err)
	}
	s.llmSvc = llm.NewService(provider, s.providerName, s.toolMgr, s.bus, s.metrics, s.maxIterations)
	return nil
}

// restoreHistoryLazily builds the exclusively-owned history provider
// (if none was borrowed at Init time) and restores the transcript.
// The 25ms backoff before the first storage construction is spec.md
// §4.1's mitigation against several sessions racing to build identical
// connections on a cold start.
func (s *Session) restoreHistoryLazily(ctx context.Context) error {
	if s.historyOwner == storageExclusive {
		time.Sleep(25 * time.Millisecond)
		provider, err := history.Select(s.storageCfg)
		if err != nil {
			return fmt.Errorf("session: select history provider: %w", err)
		}
		if provider != nil {
			s.ctxMgr.BindProvider(provider)
			s.ownedProvider = provider
		}
	}

	if err := s.ctxMgr.RestoreHistory(ctx); err != nil {
		// No provider bound (history disabled) isn't an error condition
		// worth failing the turn over; anything else, the context
		// manager just runs from whatever is already in memory.
		return nil
	}
	s.lastSnapshot = s.ctxMgr.GetRawMessages()
	return nil
}

func (s *Session) runKnowledgeMemory(ctx context.Context, userInput, response string, toolCalls, toolResults []string) error {
	if s.memoryPipeline == nil || !s.memoryPipeline.EmbeddingsEnabled() {
		return nil
	}
	facts := memory.CollectInteraction(userInput, toolCalls, toolResults, response)
	mergedContext := map[string]any{"sessionId": s.id}
	return s.memoryPipeline.ProcessFacts(ctx, facts, mergedContext)
}

func (s *Session) runReflection(ctx context.Context, userInput string) {
	if s.memoryPipeline != nil && !s.memoryPipeline.EmbeddingsEnabled() {
		return
	}
	if s.reflectionPipeline == nil || !s.reflectionPipeline.Gated(ctx, userInput) {
		return
	}
	s.reflectionPipeline.Run(ctx, userInput)
}

// summarizeLatestTurn turns the messages appended during one Generate
// call into the tool-call/tool-result summary strings spec.md §4.6
// step 1 wants, reusing memory.SummarizeToolCall for the call side.
func summarizeLatestTurn(added []*protocol.Message) (calls, results []string) {
	for _, msg := range added {
		if msg.Role == protocol.RoleAssistant {
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = nil
				}
				calls = append(calls, memory.SummarizeToolCall(tc.Function.Name, args))
			}
		}
		if msg.Role == protocol.RoleTool {
			results = append(results, fmt.Sprintf("%s: %d chars", msg.Name, len(msg.Text())))
		}
	}
	return calls, results
}

// Disconnect tears down the history provider connection if this
// session owns it exclusively. Borrowed providers, shared across
// sessions, are left untouched. In-flight background jobs are not
// cancelled; they finish on their own (spec.md §5).
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyOwner != storageExclusive || s.ctxMgr == nil {
		return nil
	}
	if s.ownedProvider == nil {
		return nil
	}
	return s.ownedProvider.Close()
}
