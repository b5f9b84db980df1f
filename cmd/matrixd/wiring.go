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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/embedder"
	"github.com/renegade-studio/matrix/internal/events"
	"github.com/renegade-studio/matrix/internal/history"
	"github.com/renegade-studio/matrix/internal/llm"
	"github.com/renegade-studio/matrix/internal/llmadapter"
	"github.com/renegade-studio/matrix/internal/memory"
	"github.com/renegade-studio/matrix/internal/reflection"
	"github.com/renegade-studio/matrix/internal/session"
	"github.com/renegade-studio/matrix/internal/tools"
	"github.com/renegade-studio/matrix/internal/vectorstore"
)

// newSessionFromConfig wires every component package into one
// session.Session the way a real deployment would: one LLM provider
// family, an optional vector-store-backed memory stack, and a
// bus/metrics pair shared process-wide.
func newSessionFromConfig(cfg *config.Config) (*session.Session, error) {
	bus := events.NewBus()
	metrics := events.NewMetrics()
	metrics.Subscribe(bus)

	toolMgr := tools.NewManager(tools.CollisionPreferMCP)
	internalSrc := tools.NewInternalSource()
	if err := toolMgr.RegisterSource(internalSrc); err != nil {
		return nil, fmt.Errorf("matrixd: register internal tool source: %w", err)
	}
	for _, server := range cfg.ToolServers {
		if err := toolMgr.RegisterSource(tools.NewMCPSource(server)); err != nil {
			return nil, fmt.Errorf("matrixd: register mcp source %s: %w", server.Name, err)
		}
	}
	if err := toolMgr.DiscoverAll(context.Background()); err != nil {
		return nil, fmt.Errorf("matrixd: discover tools: %w", err)
	}

	llmCfg, providerFamily, err := primaryLLMConfig(cfg)
	if err != nil {
		return nil, err
	}

	llmRegistry := llm.NewRegistry()
	llmFactory := func() (llm.Provider, error) {
		return llmRegistry.CreateFromConfig(providerFamily, llmCfg)
	}

	memoryPipeline, reflectionPipeline, err := buildMemoryStack(cfg, bus, toolMgr)
	if err != nil {
		return nil, err
	}

	sess := session.New(session.Config{
		ID:                 "cli-session",
		ProviderFamily:     llmCfg.Type,
		ProviderName:       llmCfg.Type,
		Model:              llmCfg.Model,
		SystemPrompt:       cfg.SystemPrompt,
		LLMFactory:         llmFactory,
		MaxIterations:      llmCfg.MaxIterations,
		MaxContextTokens:   llmCfg.ContextWindowTokens,
		ToolManager:        toolMgr,
		Bus:                bus,
		Metrics:            metrics,
		StorageConfig:      storageConfigFromEnv(),
		MemoryPipeline:     memoryPipeline,
		ReflectionPipeline: reflectionPipeline,
	})
	return sess, nil
}

func primaryLLMConfig(cfg *config.Config) (*config.LLMProviderConfig, string, error) {
	for name, llmCfg := range cfg.LLMs {
		return llmCfg, name, nil
	}
	return nil, "", fmt.Errorf("matrixd: config has no llms entry")
}

// storageConfigFromEnv reads PG_URL and SQLITE_PATH (default
// ./matrix-history.db) into a history.StorageConfig; history.Select
// then uses Postgres when PGURL is set and SQLite otherwise, and reads
// MULTI_BACKEND / WAL_FLUSH_INTERVAL itself.
func storageConfigFromEnv() history.StorageConfig {
	return history.StorageConfig{
		PGURL:      os.Getenv("PG_URL"),
		SQLitePath: config.StringEnv("SQLITE_PATH", "./matrix-history.db"),
	}
}

func buildMemoryStack(cfg *config.Config, bus *events.Bus, toolMgr *tools.Manager) (*memory.Pipeline, *reflection.Pipeline, error) {
	if cfg.Embedder == nil || cfg.VectorStore == nil {
		return nil, nil, nil
	}

	embedRegistry := embedder.NewRegistry()
	embed, err := embedRegistry.CreateFromConfig(cfg.Embedder.Type, cfg.Embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("matrixd: build embedder: %w", err)
	}

	vecRegistry := vectorstore.NewRegistry()
	vecStore, err := vecRegistry.CreateFromConfig(cfg.VectorStore.Type, cfg.VectorStore)
	if err != nil {
		return nil, nil, fmt.Errorf("matrixd: build vector store: %w", err)
	}

	llmRegistry := llm.NewRegistry()
	decisionLLMCfg, family, err := primaryLLMConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	decisionProvider, err := llmRegistry.CreateFromConfig(family, decisionLLMCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("matrixd: build decision llm: %w", err)
	}
	decisionSvc := llm.NewService(decisionProvider, family, nil, bus, nil, 1)

	memoryPipeline := memory.NewPipeline(vecStore, embed, cfg.VectorStore.Collection, &llmadapter.DecisionAdapter{Service: decisionSvc}, cfg.Memory, bus)

	reflectionSvc := llm.NewService(decisionProvider, family, nil, bus, nil, 1)
	reflectionPipeline := reflection.NewPipeline(
		&llmadapter.Detector{Service: reflectionSvc},
		&llmadapter.Extractor{Service: reflectionSvc},
		&llmadapter.Evaluator{Service: reflectionSvc},
		vecStore, embed, "matrix_reflection", bus, 0.6,
		func() bool { return reflectionToolsPresent(toolMgr) },
	)

	return memoryPipeline, reflectionPipeline, nil
}

func runOptionsDefault() session.RunOptions {
	return session.RunOptions{}
}

// reflectionToolsPresent implements the §4.7 gate: both reflection
// tools must be registered in the tool manager for reflection to run
// at all.
func reflectionToolsPresent(toolMgr *tools.Manager) bool {
	if toolMgr == nil {
		return false
	}
	seen := map[string]bool{}
	for _, info := range toolMgr.GetAllTools() {
		seen[info.Name] = true
	}
	return seen["extract_reasoning_steps"] && seen["store_reasoning_memory"]
}
