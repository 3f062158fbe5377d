// ABOUTME: Standalone MCP server binary for the anonymizer with stdio transport
// ABOUTME: Same tools as 'anonymize mcp', for hosts that launch a dedicated binary
package main

import (
	"os"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/anonymizer/internal/app"
	"github.com/harper/anonymizer/internal/config"
	"github.com/harper/anonymizer/internal/logging"
	"github.com/harper/anonymizer/internal/mcp"
)

var version = "dev"

func main() {
	// a missing .env is normal
	_ = godotenv.Load()

	logger := logging.New(os.Stderr, "info")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", "error", err)
	}
	defer a.Close()

	server, _ := mcp.NewServer(a, version)

	logger.Info("anonymizer MCP server starting on stdio", "backend", cfg.Backend, "model", cfg.ModelLabel())
	if err := mcpserver.ServeStdio(server); err != nil {
		logger.Error("server error", "error", err)
		a.Close()
		os.Exit(1)
	}
}
