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

// Package config defines the typed configuration shapes Matrix is built
// from. The concrete YAML/remote-config loading machinery (koanf,
// consul, etcd, zookeeper watchers) is out of scope for this module;
// Load here only covers file + environment-variable substitution, the
// minimum a test or a local run needs.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for a Matrix process.
type Config struct {
	LLMs         map[string]*LLMProviderConfig `yaml:"llms,omitempty"`
	Embedder     *EmbedderProviderConfig       `yaml:"embedder,omitempty"`
	VectorStore  *VectorStoreConfig            `yaml:"vector_store,omitempty"`
	SystemPrompt string                        `yaml:"system_prompt,omitempty"`
	ToolServers  []RemoteToolServerConfig      `yaml:"tool_servers,omitempty"`
	Memory       MemoryConfig                  `yaml:"memory,omitempty"`
	Tracing      TracingConfig                 `yaml:"tracing,omitempty"`
}

// TracingConfig controls the process tracer (internal/tracing).
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled,omitempty"`
	ServiceName    string  `yaml:"service_name,omitempty"`
	SampleFraction float64 `yaml:"sample_fraction,omitempty"`
}

// LLMProviderConfig configures a single LLM backend.
type LLMProviderConfig struct {
	Type               string  `yaml:"type"` // openai, openrouter, ollama, lmstudio, qwen, gemini, azure, anthropic, aws
	Model              string  `yaml:"model"`
	APIKey             string  `yaml:"api_key,omitempty"`
	BaseURL            string  `yaml:"base_url,omitempty"`
	Temperature        float64 `yaml:"temperature,omitempty"`
	MaxTokens          int     `yaml:"max_tokens,omitempty"`
	Timeout            int     `yaml:"timeout,omitempty"` // seconds
	MaxRetries         int     `yaml:"max_retries,omitempty"` // not read by internal/llm, which retries a fixed 3 times
	RetryDelay         int     `yaml:"retry_delay,omitempty"` // seconds; not read by internal/llm, whose backoff unit is a fixed 500ms
	MaxIterations      int     `yaml:"max_iterations,omitempty"`
	InsecureSkipVerify *bool   `yaml:"insecure_skip_verify,omitempty"`

	// ContextWindowTokens bounds the formatted transcript the context
	// manager hands to the provider (spec.md §4.2). SetDefaults turns 0
	// into 8192; a negative value disables windowing.
	ContextWindowTokens int `yaml:"context_window_tokens,omitempty"`
}

// SetDefaults fills in the knobs spec.md §4.4 names explicitly.
func (c *LLMProviderConfig) SetDefaults() {
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 1
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 5
	}
	if c.ContextWindowTokens == 0 {
		c.ContextWindowTokens = 8192
	}
}

func (c *LLMProviderConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("llm config: type is required")
	}
	if c.Model == "" {
		return fmt.Errorf("llm config: model is required")
	}
	return nil
}

// EmbedderProviderConfig configures the embedding backend.
type EmbedderProviderConfig struct {
	Type       string `yaml:"type"` // ollama, openai, cohere
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Dimension  int    `yaml:"dimension,omitempty"`
	Timeout    int    `yaml:"timeout,omitempty"` // seconds
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

func (c *EmbedderProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "ollama"
	}
	if c.Model == "" {
		switch c.Type {
		case "ollama":
			c.Model = "nomic-embed-text"
		case "openai":
			c.Model = "text-embedding-3-small"
		case "cohere":
			c.Model = "embed-english-v3.0"
		}
	}
	if c.BaseURL == "" && c.Type == "ollama" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Dimension == 0 {
		c.Dimension = 768
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// VectorStoreConfig configures the knowledge/reflection vector backend.
type VectorStoreConfig struct {
	Type       string `yaml:"type"` // qdrant, pinecone, chromem
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	EnableTLS  *bool  `yaml:"enable_tls,omitempty"`
	Path       string `yaml:"path,omitempty"` // local chromem persistence dir
	Namespace  string `yaml:"namespace,omitempty"` // pinecone index namespace
}

func (c *VectorStoreConfig) SetDefaults() {
	if c.Collection == "" {
		c.Collection = "matrix_knowledge"
	}
	if c.Type == "" {
		c.Type = "qdrant"
	}
	if c.Type == "qdrant" {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 6334
		}
	}
	if c.Type == "chromem" && c.Path == "" {
		c.Path = "./matrix-chromem-data"
	}
}

// BoolPtr is a small helper for optional bool config fields.
func BoolPtr(b bool) *bool { return &b }

// RemoteToolServerConfig describes an MCP-reachable tool server.
type RemoteToolServerConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"` // stdio, sse, http
	URL       string `yaml:"url,omitempty"`
	Command   string `yaml:"command,omitempty"`
}

// MemoryConfig configures the knowledge-memory decision engine
// (spec.md §4.6, step 2).
type MemoryConfig struct {
	SimilarityThreshold  float64 `yaml:"similarity_threshold,omitempty"`
	MaxSimilarResults    int     `yaml:"max_similar_results,omitempty"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold,omitempty"`
	UseWorkspaceMemory   bool    `yaml:"use_workspace_memory,omitempty"`
	DisableDefaultMemory bool    `yaml:"disable_default_memory,omitempty"`

	// UseLLMDecisions and EnableDeleteOps default to true (spec.md
	// §4.6 step 2's documented options), which a plain bool can't
	// express: its zero value is false, so any config that omits these
	// keys would silently get the opposite of the spec's default.
	// Tri-state via *bool: nil means "not set, use the default".
	UseLLMDecisions *bool `yaml:"use_llm_decisions,omitempty"`
	EnableDeleteOps *bool `yaml:"enable_delete_operations,omitempty"`
}

func (c *MemoryConfig) SetDefaults() {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.7
	}
	if c.MaxSimilarResults == 0 {
		c.MaxSimilarResults = 5
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.4
	}
	if c.UseLLMDecisions == nil {
		c.UseLLMDecisions = BoolPtr(true)
	}
	if c.EnableDeleteOps == nil {
		c.EnableDeleteOps = BoolPtr(true)
	}
}

// UseLLMDecisionsEnabled and DeleteOperationsEnabled expose the
// tri-state flags' effective values. Callable even before SetDefaults
// runs, since a nil pointer is treated as the documented default.
func (c MemoryConfig) UseLLMDecisionsEnabled() bool {
	return c.UseLLMDecisions == nil || *c.UseLLMDecisions
}

func (c MemoryConfig) DeleteOperationsEnabled() bool {
	return c.EnableDeleteOps == nil || *c.EnableDeleteOps
}

// Load reads a YAML config file from path, expanding ${VAR} /
// ${VAR:-default} placeholders against the process environment (after
// loading a sibling .env file, if present).
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.Memory.SetDefaults()
	for _, llm := range cfg.LLMs {
		llm.SetDefaults()
	}
	if cfg.Embedder != nil {
		cfg.Embedder.SetDefaults()
	}
	if cfg.VectorStore != nil {
		cfg.VectorStore.SetDefaults()
	}

	return &cfg, nil
}
