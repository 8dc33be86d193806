package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIGenerator streams completions from the OpenAI chat API or any
// compatible endpoint.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates an OpenAI-backed generator.
func NewOpenAIGenerator(apiKey, model, baseURL string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Stream sends the prompt as a single user message and forwards completion
// deltas as they arrive.
func (g *OpenAIGenerator) Stream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan string, <-chan error) {
	contentCh := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		defer close(errCh)

		model := opts.Model
		if model == "" {
			model = g.model
		}

		log.Debug("Requesting generation from OpenAI", "model", model)

		stream := g.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
		})

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				// The consumer may have abandoned the stream; never block on
				// a send the cancelled context can no longer unblock.
				select {
				case contentCh <- chunk.Choices[0].Delta.Content:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) {
				errCh <- &BackendError{Status: apiErr.StatusCode, Body: apiErr.Message}
				return
			}
			errCh <- err
		}
	}()

	return contentCh, errCh
}

// Provider returns the provider name.
func (g *OpenAIGenerator) Provider() Provider {
	return ProviderOpenAI
}

// ModelName returns the default model name.
func (g *OpenAIGenerator) ModelName() string {
	return g.model
}
