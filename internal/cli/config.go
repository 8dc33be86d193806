package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kwhuang/manualqa/internal/config"
	"github.com/kwhuang/manualqa/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Display current configuration settings and the config file location.

Examples:
  # Show current configuration
  manualqa config

  # Show config file path
  manualqa config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file path")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		fmt.Println(ui.Header.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Config file: %s\n", config.ConfigFilePath())
		fmt.Printf("Corpus:      %s\n", cfg.Corpus.Dir)
		fmt.Printf("Index:       %s\n", cfg.Index.Dir)
		return nil
	}

	fmt.Println(ui.Header.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Corpus:"))
	fmt.Printf("  Directory: %s\n", cfg.Corpus.Dir)
	fmt.Printf("  Max File Size: %d bytes\n", cfg.Corpus.MaxFileSize)
	fmt.Printf("  Max File Count: %d\n", cfg.Corpus.MaxFileCount)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Chunking:"))
	fmt.Printf("  Max Chunk Size: %d\n", cfg.Chunking.MaxChunkSize)
	fmt.Printf("  Chunk Overlap: %d\n", cfg.Chunking.ChunkOverlap)
	fmt.Printf("  Max Chunks Per Source: %d\n", cfg.Chunking.MaxChunksPerSource)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Index:"))
	fmt.Printf("  Directory: %s\n", cfg.Index.Dir)
	fmt.Printf("  Backend: %s\n", cfg.Index.Backend)
	fmt.Printf("  Batch Size: %d\n", cfg.Index.BatchSize)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Retrieval:"))
	fmt.Printf("  Top K: %d\n", cfg.Retrieval.TopK)
	fmt.Printf("  Threshold: %.2f\n", cfg.Retrieval.Threshold)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embeddings:"))
	fmt.Printf("  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("LLM:"))
	fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
	fmt.Printf("  Ollama URL: %s\n", cfg.LLM.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.LLM.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.LLM.OpenAI.Model)
	fmt.Printf("  Context Length: %d\n", cfg.LLM.ContextLength)
	fmt.Printf("  Context Chunks: %d\n", cfg.LLM.ContextChunks)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Server:"))
	fmt.Printf("  Address: %s\n", cfg.Server.Addr)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ignore Patterns:"))
	fmt.Printf("  %d patterns configured\n", len(cfg.Ignore))

	return nil
}
