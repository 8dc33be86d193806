package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kwhuang/manualqa/internal/config"
	"github.com/kwhuang/manualqa/internal/index"
	"github.com/kwhuang/manualqa/internal/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status and statistics",
	Long: `Display information about the built index including:
- Number of indexed chunks and their dimensionality
- When the index was last built
- Embedding and generation providers in use

Examples:
  # Show index status
  manualqa status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	log.Debug("Showing status", "index", cfg.Index.Dir)

	fmt.Println(ui.Header.Render("Index Status"))
	fmt.Println()

	loader := index.NewLoader(cfg.Index.Dir, cfg.Index.Backend)
	idx, err := loader.Load()
	if err != nil {
		if errors.Is(err, index.ErrUnavailable) {
			fmt.Println(ui.Warning.Render("No index found."))
			fmt.Println()
			fmt.Println("Run 'manualqa build' to create one.")
			return nil
		}
		return fmt.Errorf("failed to load index: %w", err)
	}

	fmt.Printf("  %s %s\n", ui.Dim.Render("Location:"), cfg.Index.Dir)
	fmt.Printf("  %s %d\n", ui.Dim.Render("Chunks:"), idx.Count())
	fmt.Printf("  %s %d\n", ui.Dim.Render("Dimensions:"), idx.Dimensions())
	fmt.Printf("  %s %s\n", ui.Dim.Render("Backend:"), cfg.Index.Backend)

	if info, err := os.Stat(filepath.Join(cfg.Index.Dir, index.VectorsFile)); err == nil {
		fmt.Printf("  %s %s (%s)\n",
			ui.Dim.Render("Built:"),
			formatTime(info.ModTime()),
			formatBytes(info.Size()),
		)
	}

	health := ui.Success.Render("healthy")
	if idx.Count() == 0 {
		health = ui.Warning.Render("empty (no chunks indexed)")
	}
	fmt.Printf("  %s %s\n", ui.Dim.Render("Health:"), health)

	fmt.Println()
	fmt.Println(ui.Dim.Render("Configuration:"))
	fmt.Printf("  Corpus: %s\n", cfg.Corpus.Dir)
	fmt.Printf("  Embedding Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  LLM Provider: %s\n", cfg.LLM.Provider)

	return nil
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}
	return t.Format("Jan 2, 2006 at 15:04")
}
