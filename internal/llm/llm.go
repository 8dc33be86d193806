// Package llm provides streaming text generation for answering questions.
package llm

import (
	"context"
	"fmt"

	"github.com/kwhuang/manualqa/internal/config"
)

// Provider represents a generation provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// GenerateOptions configures a generation request.
type GenerateOptions struct {
	// Model overrides the configured model when non-empty.
	Model string

	// ContextLength is the model context window in tokens. Zero means the
	// provider default.
	ContextLength int
}

// BackendError is returned when the generation backend answers with a
// non-success status.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("generation backend returned status %d: %s", e.Status, e.Body)
}

// Generator streams a completion for a fully assembled prompt. Fragments are
// delivered on the first channel as they arrive; a failure is delivered on
// the second. Both channels are closed when the stream ends.
type Generator interface {
	Stream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan string, <-chan error)

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the default model name.
	ModelName() string
}

// NewGenerator creates a Generator based on the configuration.
func NewGenerator(cfg *config.Config) (Generator, error) {
	switch cfg.LLM.Provider {
	case "ollama":
		return NewOllamaGenerator(
			cfg.LLM.Ollama.URL,
			cfg.LLM.Ollama.Model,
		)
	case "openai":
		return NewOpenAIGenerator(
			cfg.LLM.OpenAI.APIKey,
			cfg.LLM.OpenAI.Model,
			cfg.LLM.OpenAI.BaseURL,
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}
