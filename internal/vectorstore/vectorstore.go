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

// Package vectorstore abstracts the vector-database backends behind
// the knowledge and reflection memory pipelines (spec.md §4.6/§4.7).
// Embedding/vector-store driver internals are intentionally thin: the
// pipelines only ever see the Provider interface below.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/registry"
)

// SearchResult is one hit from a similarity search.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Provider is the vector-database operations the memory pipelines
// need: upsert, similarity search (optionally filtered), and delete.
type Provider interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error)
	Delete(ctx context.Context, collection, id string) error
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error
	CreateCollection(ctx context.Context, collection string, vectorSize uint64) error
	Close() error
}

// Registry is the named collection of configured vector-store providers.
type Registry struct {
	*registry.Registry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{Registry: registry.New[Provider]()}
}

// CreateFromConfig builds, registers, and returns a Provider for cfg.
func (r *Registry) CreateFromConfig(name string, cfg *config.VectorStoreConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vectorstore: config cannot be nil")
	}
	cfg.SetDefaults()

	var provider Provider
	var err error
	switch cfg.Type {
	case "qdrant", "":
		provider, err = NewQdrantProvider(cfg)
	case "pinecone":
		provider, err = NewPineconeProvider(cfg)
	case "chromem":
		provider, err = NewChromemProvider(cfg)
	default:
		return nil, fmt.Errorf("vectorstore: unsupported type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create %q: %w", name, err)
	}
	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("vectorstore: register %q: %w", name, err)
	}
	return provider, nil
}
