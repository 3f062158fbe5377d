// ABOUTME: MCP command starts the Model Context Protocol server on stdio
// ABOUTME: Lets LLM agents anonymize text through the local model
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/harper/anonymizer/internal/app"
	"github.com/harper/anonymizer/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs the anonymizer as an MCP (Model Context Protocol) server on stdio,
so agents like Claude can anonymize text with the local model before
it is shared further.

Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by Claude Desktop)
  anonymize mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "anonymizer": {
  #       "command": "anonymize",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	server, handlers := mcp.NewServer(a, versionInfo.Version)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("MCP server starting on stdio", "backend", cfg.Backend, "model", cfg.ModelLabel())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, waiting for the current run")
		handlers.Shutdown()

		if err := a.Close(); err != nil {
			logger.Warn("error closing", "error", err)
		}
		logger.Info("shutdown complete")

	case err := <-serverErr:
		if cerr := a.Close(); cerr != nil {
			logger.Warn("error closing", "error", cerr)
		}
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}
