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

// Package embedder abstracts the text-embedding backends the knowledge
// and reflection memory pipelines depend on (spec.md §4.6/§4.7). The
// vector math and HTTP wire formats of any given provider are an
// implementation detail behind this interface.
package embedder

import (
	"context"
	"fmt"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/registry"
)

// Provider generates embeddings for a piece of text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
	Close() error
}

// Registry is the named collection of configured embedder providers.
type Registry struct {
	*registry.Registry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{Registry: registry.New[Provider]()}
}

// CreateFromConfig builds, registers, and returns a Provider for cfg.
func (r *Registry) CreateFromConfig(name string, cfg *config.EmbedderProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedder: config cannot be nil")
	}
	cfg.SetDefaults()

	var provider Provider
	var err error
	switch cfg.Type {
	case "ollama":
		provider, err = NewOllamaProvider(cfg)
	case "openai":
		provider, err = NewOpenAIProvider(cfg)
	case "cohere":
		provider, err = NewCohereProvider(cfg)
	default:
		return nil, fmt.Errorf("embedder: unsupported type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("embedder: create %q: %w", name, err)
	}
	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("embedder: register %q: %w", name, err)
	}
	return provider, nil
}
