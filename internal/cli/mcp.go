package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kwhuang/manualqa/internal/config"
	"github.com/kwhuang/manualqa/internal/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Run a Model Context Protocol server over stdin/stdout.

The server exposes the manual to MCP clients as two tools:
  manual_search  Retrieve relevant passages for a question
  manual_ask     Get a complete grounded answer with sources

Register the binary with your MCP client, for example:
  manualqa mcp`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	orchestrator, retriever, _, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	srv := mcp.NewServer(retriever, orchestrator, version)
	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
