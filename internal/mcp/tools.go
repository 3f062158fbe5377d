// ABOUTME: MCP tool definitions and registration for the anonymizer server
// ABOUTME: Exposes anonymization, example listing, and run history as MCP tools
package mcp

import (
	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/anonymizer/internal/app"
	"github.com/harper/anonymizer/internal/core"
	"github.com/harper/anonymizer/internal/logging"
	"github.com/harper/anonymizer/internal/storage"
	"github.com/harper/anonymizer/internal/storage/sqlite"
)

// HistoryReader is the part of the history store the tools read
type HistoryReader interface {
	ListRuns(limit int) ([]sqlite.RunSummary, error)
}

// Deps are the components the handlers use
type Deps struct {
	Pipeline *core.Pipeline
	Settings storage.SettingsStore
	History  HistoryReader // optional
	// RunSettings turns stored prompt settings into per-run settings
	RunSettings func() (core.Settings, error)
	Logger      *log.Logger
}

// NewServer creates an MCP server with every tool bound to the app's components
func NewServer(a *app.App, version string) (*mcpserver.MCPServer, *Handlers) {
	server := mcpserver.NewMCPServer("Local Anonymizer", version)

	deps := Deps{
		Pipeline:    a.Pipeline,
		Settings:    a.Settings,
		RunSettings: a.RunSettings,
		Logger:      a.Logger,
	}
	if a.History != nil {
		deps.History = a.History
	}

	return server, RegisterTools(server, deps)
}

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, deps Deps) *Handlers {
	handlers := &Handlers{
		pipeline:    deps.Pipeline,
		settings:    deps.Settings,
		history:     deps.History,
		runSettings: deps.RunSettings,
		logger:      logging.ForComponent(deps.Logger, "mcp"),
	}

	// 1. anonymize_text - run the pipeline over a text document
	server.AddTool(mcp.Tool{
		Name:        "anonymize_text",
		Description: "Replace personal information in a text document with placeholders using the local model. Sections split on headers are processed one at a time; a section that fails keeps its original text and is listed in failed_sections.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Document text to anonymize",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Optional document name recorded in run history",
				},
			},
			Required: []string{"text"},
		},
	}, handlers.AnonymizeText)

	// 2. list_examples - show the few-shot examples in use
	server.AddTool(mcp.Tool{
		Name:        "list_examples",
		Description: "List the instruction and few-shot example pairs that steer anonymization.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.ListExamples)

	// 3. list_runs - recent run history
	server.AddTool(mcp.Tool{
		Name:        "list_runs",
		Description: "List recent anonymization runs with status and failed section counts. No document text is stored.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of runs to return (default: 10)",
					"default":     10,
				},
			},
		},
	}, handlers.ListRuns)

	return handlers
}
