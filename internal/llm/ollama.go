package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// OllamaGenerator streams completions from Ollama's generate API.
type OllamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaGenerator creates an Ollama-backed generator.
func NewOllamaGenerator(baseURL, model string) (*OllamaGenerator, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaGenerator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 5 * time.Minute, // LLM calls can be slow
		},
	}, nil
}

// Stream sends the prompt to Ollama and forwards response fragments as they
// arrive. The response is newline-delimited JSON; lines that fail to parse
// are logged and skipped rather than aborting the stream.
func (g *OllamaGenerator) Stream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan string, <-chan error) {
	contentCh := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		defer close(errCh)

		model := opts.Model
		if model == "" {
			model = g.model
		}

		reqBody := ollamaGenerateRequest{
			Model:  model,
			Prompt: prompt,
			Stream: true,
		}
		if opts.ContextLength > 0 {
			reqBody.Options = map[string]interface{}{"num_ctx": opts.ContextLength}
		}

		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			errCh <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		url := g.baseURL + "/api/generate"
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
		if err != nil {
			errCh <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		log.Debug("Requesting generation from Ollama", "model", model)

		resp, err := g.client.Do(req)
		if err != nil {
			errCh <- fmt.Errorf("failed to make request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errCh <- &BackendError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				log.Debug("Skipping malformed stream line", "error", err)
				continue
			}

			if chunk.Response != "" {
				// The consumer may have abandoned the stream; never block on
				// a send the cancelled context can no longer unblock.
				select {
				case contentCh <- chunk.Response:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("failed to read stream: %w", err)
		}
	}()

	return contentCh, errCh
}

// Provider returns the provider name.
func (g *OllamaGenerator) Provider() Provider {
	return ProviderOllama
}

// ModelName returns the default model name.
func (g *OllamaGenerator) ModelName() string {
	return g.model
}
