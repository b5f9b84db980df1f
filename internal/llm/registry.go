package llm

import (
	"fmt"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/registry"
)

// Registry is the named collection of configured LLM providers.
type Registry struct {
	*registry.Registry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{Registry: registry.New[Provider]()}
}

// CreateFromConfig builds, registers, and returns a Provider for cfg.
// Type dispatch follows spec.md §2's provider families: OpenAI-shaped
// (openai, openrouter, ollama, lmstudio, qwen, azure), Anthropic-family
// (anthropic, aws), and Gemini.
func (r *Registry) CreateFromConfig(name string, cfg *config.LLMProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm: config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("llm: invalid config for %q: %w", name, err)
	}

	var provider Provider
	var err error
	switch cfg.Type {
	case "openai", "openrouter", "ollama", "lmstudio", "qwen":
		provider, err = NewOpenAIShapedProvider(cfg)
	case "azure":
		provider, err = NewAzureProvider(cfg)
	case "anthropic", "aws":
		provider, err = NewAnthropicProvider(cfg)
	case "gemini":
		provider, err = NewGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("llm: unsupported type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: create %q: %w", name, err)
	}
	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("llm: register %q: %w", name, err)
	}
	return provider, nil
}
