package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kwhuang/manualqa/internal/config"
	"github.com/kwhuang/manualqa/internal/corpus"
	"github.com/kwhuang/manualqa/internal/embeddings"
	"github.com/kwhuang/manualqa/internal/indexer"
	"github.com/kwhuang/manualqa/internal/ui"
)

var (
	buildCorpus string
	buildOutput string
	buildDryRun bool
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build [path]",
	Short: "Build the searchable index from the corpus",
	Long: `Build the vector index from the corpus of text files.

This command will:
1. Discover all text files in the corpus directory
2. Split files into overlapping passages
3. Generate embeddings for each passage
4. Write the index artifacts to the index directory

Building fully replaces any previous index.

Examples:
  # Build from the configured corpus directory
  manualqa build

  # Build from a specific directory
  manualqa build ./texts

  # Preview what would be indexed
  manualqa build --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildCorpus, "corpus", "", "corpus directory (defaults to configured corpus dir)")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "index output directory (defaults to configured index dir)")
	buildCmd.Flags().BoolVarP(&buildDryRun, "dry-run", "d", false, "preview without building")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	corpusPath := buildCorpus
	if len(args) > 0 {
		corpusPath = args[0]
	}
	if corpusPath == "" {
		corpusPath = cfg.Corpus.Dir
	}

	absPath, err := filepath.Abs(corpusPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("corpus path does not exist: %s", absPath)
	}
	if !info.IsDir() {
		return fmt.Errorf("corpus path is not a directory: %s", absPath)
	}

	log.Debug("Starting build", "corpus", absPath, "dry-run", buildDryRun)

	if buildDryRun {
		return runBuildDryRun(absPath, cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, cleaning up...")
		cancel()
	}()

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	idx := indexer.New(emb, cfg)

	fmt.Println(ui.Header.Render("Building index"))
	fmt.Printf("Corpus: %s\n", absPath)
	fmt.Printf("Provider: %s (%s)\n", cfg.Embeddings.Provider, emb.ModelName())
	fmt.Printf("Backend: %s\n", cfg.Index.Backend)
	fmt.Println()

	startTime := time.Now()
	lastUpdate := time.Now()

	opts := indexer.BuildOptions{
		CorpusPath: absPath,
		IndexDir:   buildOutput,
		OnProgress: func(p indexer.Progress) {
			// Throttle updates to every 100ms
			if time.Since(lastUpdate) < 100*time.Millisecond {
				return
			}
			lastUpdate = time.Now()

			fmt.Printf("\r\033[K")
			if p.TotalChunks > 0 {
				pct := float64(p.EmbeddedChunks) / float64(p.TotalChunks) * 100
				fmt.Printf("Embedding: %d/%d chunks (%.0f%%)", p.EmbeddedChunks, p.TotalChunks, pct)
			} else if p.TotalFiles > 0 {
				pct := float64(p.ProcessedFiles) / float64(p.TotalFiles) * 100
				fmt.Printf("Chunking: %d/%d files (%.0f%%) | %s",
					p.ProcessedFiles, p.TotalFiles, pct, truncatePath(p.CurrentFile, 40))
			}
		},
	}

	count, err := idx.Build(ctx, opts)

	fmt.Printf("\r\033[K")

	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Build cancelled"))
			return nil
		}
		return fmt.Errorf("build failed: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	progress := idx.Progress()
	fmt.Println(ui.Success.Render("Build complete!"))
	fmt.Println()
	fmt.Printf("  Files:    %d\n", progress.ProcessedFiles)
	fmt.Printf("  Chunks:   %d\n", count)
	fmt.Printf("  Duration: %s\n", duration)

	return nil
}

// runBuildDryRun shows what would be indexed without building.
func runBuildDryRun(path string, cfg *config.Config) error {
	fmt.Println(ui.Header.Render("Dry Run - Preview"))
	fmt.Printf("Corpus: %s\n\n", path)

	walker, err := corpus.NewWalker(corpus.WalkOptions{
		Root:           path,
		MaxFileSize:    int64(cfg.Corpus.MaxFileSize),
		MaxFileCount:   cfg.Corpus.MaxFileCount,
		IgnorePatterns: cfg.Ignore,
	})
	if err != nil {
		return fmt.Errorf("failed to create walker: %w", err)
	}

	var totalBytes int64
	count := 0
	err = walker.Walk(func(fi corpus.FileInfo) error {
		fmt.Printf("  %s (%s)\n", fi.RelPath, formatBytes(fi.Size))
		totalBytes += fi.Size
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk corpus: %w", err)
	}

	stats := walker.Stats()
	fmt.Println()
	fmt.Printf("Would index %d files (%s), skipping %d\n",
		count, formatBytes(totalBytes), stats.FilesSkipped+stats.DuplicatesSkipped)
	return nil
}

// truncatePath shortens a path for single-line progress display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	parts := strings.Split(path, string(filepath.Separator))
	if len(parts) > 2 {
		short := ".../" + filepath.Join(parts[len(parts)-2], parts[len(parts)-1])
		if len(short) <= maxLen {
			return short
		}
	}
	return "..." + path[len(path)-maxLen+3:]
}

// formatBytes renders a byte count in human units.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
