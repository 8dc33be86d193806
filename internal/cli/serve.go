package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kwhuang/manualqa/internal/config"
	"github.com/kwhuang/manualqa/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question-answering HTTP API",
	Long: `Serve the HTTP API for querying the manual.

The index is loaded in the background on startup; queries return 503
until it is ready. Answers stream over server-sent events.

Endpoints:
  GET /       Service status and information
  GET /query  Ask a question (?question=...&model=...)

Examples:
  # Serve on the configured address
  manualqa serve

  # Serve on a specific address
  manualqa serve --addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to configured address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	orchestrator, _, loader, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}

	srv := server.New(addr, version, orchestrator, loader)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("Shutting down")
		if err := srv.Shutdown(); err != nil {
			log.Warn("Shutdown failed", "error", err)
		}
	}()

	if err := srv.Run(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
