package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/kwhuang/manualqa/internal/answer"
	"github.com/kwhuang/manualqa/internal/config"
	"github.com/kwhuang/manualqa/internal/embeddings"
	"github.com/kwhuang/manualqa/internal/index"
	"github.com/kwhuang/manualqa/internal/llm"
	"github.com/kwhuang/manualqa/internal/retrieval"
	"github.com/kwhuang/manualqa/internal/ui"
)

var (
	askModel  string
	askRender bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the manual",
	Long: `Ask a natural-language question and stream the answer.

The question is matched against the indexed manual passages; the most
relevant ones are handed to the LLM as grounding context. By default the
answer is printed as it streams in.

Examples:
  # Ask a question
  manualqa ask "how do I mirror an object"

  # Use a specific model
  manualqa ask "what is a subsurface modifier" --model llama3

  # Wait for the full answer and render it as markdown
  manualqa ask "how do I add a camera" --render`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "M", "", "generation model (defaults to configured model)")
	askCmd.Flags().BoolVarP(&askRender, "render", "r", false, "collect the full answer and render it as markdown")
}

// newOrchestrator assembles the full retrieval and generation pipeline from
// configuration. It is shared by the ask, serve, and mcp commands.
func newOrchestrator(cfg *config.Config) (*answer.Orchestrator, *retrieval.Retriever, *index.Loader, error) {
	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	gen, err := llm.NewGenerator(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create generator: %w", err)
	}

	loader := index.NewLoader(cfg.Index.Dir, cfg.Index.Backend)
	retriever := retrieval.New(loader, emb, retrieval.Options{
		CorpusDir: cfg.Corpus.Dir,
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.Threshold,
	})
	prompts := llm.NewPromptBuilder(cfg.LLM.ContextChunks)
	defaults := llm.GenerateOptions{ContextLength: cfg.LLM.ContextLength}

	return answer.New(retriever, prompts, gen, defaults), retriever, loader, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	cfg := config.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted")
		cancel()
	}()

	orchestrator, _, _, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}

	stream := orchestrator.Ask(ctx, question, askModel)
	defer stream.Close()

	var stopSpinner chan struct{}
	var spinnerDone chan struct{}
	if askRender {
		stopSpinner = make(chan struct{})
		spinnerDone = make(chan struct{})
		go showSpinner("Generating answer", stopSpinner, spinnerDone)
	}

	var full strings.Builder
	for fragment := range stream.Fragments() {
		if !askRender {
			fmt.Print(fragment)
		}
		full.WriteString(fragment)
	}

	if askRender {
		close(stopSpinner)
		<-spinnerDone
	}

	if ctx.Err() != nil {
		fmt.Println()
		return nil
	}

	if askRender {
		fmt.Println(ui.Header.Render("Answer"))
		fmt.Println()
		if rendered, err := renderMarkdown(full.String()); err == nil {
			fmt.Print(rendered)
		} else {
			fmt.Println(full.String())
		}
	} else {
		fmt.Println()
		fmt.Println()
	}

	sources := stream.Sources()
	if len(sources) > 0 {
		fmt.Println(ui.Dim.Render("Sources:"))
		for _, s := range sources {
			fmt.Printf("  [%d] %s\n", s.Rank, ui.FormatSource(s.Chunk.Source, s.Similarity))
		}
	}

	return nil
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			fmt.Print("\r\033[2K")
			return
		case <-ticker.C:
			fmt.Printf("\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}
