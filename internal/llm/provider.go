// Package llm defines the provider interface used for Blender layout script
// generation and the factory that selects a provider from configuration.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/j03m/directors-chair/internal/config"
	"github.com/j03m/directors-chair/internal/llm/providers/claude"
	"github.com/j03m/directors-chair/internal/llm/providers/gemini"
	"github.com/j03m/directors-chair/internal/llm/providers/openai"
)

// Provider generates text through one LLM vendor.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate returns the model's text response for a system + user prompt
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// NewProvider builds the provider named in cfg, reading its API key from the
// environment.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return claude.NewProvider(key, cfg.Models.Anthropic), nil
	case "google", "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set")
		}
		return gemini.NewProvider(context.Background(), key, cfg.Models.Google)
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return openai.NewProvider(key, cfg.Models.OpenAI), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
