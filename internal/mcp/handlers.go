// ABOUTME: MCP tool handler implementations for the anonymizer server
// ABOUTME: Serializes pipeline runs and reports tool errors as MCP error results
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"

	"github.com/harper/anonymizer/internal/core"
	"github.com/harper/anonymizer/internal/models"
	"github.com/harper/anonymizer/internal/storage"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	pipeline    *core.Pipeline
	settings    storage.SettingsStore
	history     HistoryReader
	runSettings func() (core.Settings, error)
	logger      *log.Logger
	runMu       sync.Mutex // one pipeline run at a time
}

// AnonymizeText handles the anonymize_text tool
func (h *Handlers) AnonymizeText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required and must be a string"), nil
	}
	name := request.GetString("name", "mcp")

	settings, err := h.runSettings()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load settings: %v", err)), nil
	}

	h.runMu.Lock()
	state, done := h.pipeline.Run(ctx, models.NewDocument(name, text), settings, nil, nil)
	h.runMu.Unlock()

	if done.Status == models.RunFailed {
		return mcp.NewToolResultError(fmt.Sprintf("anonymization failed: %v", done.Err)), nil
	}

	failed := lo.FilterMap(done.Results, func(r models.ChunkResult, _ int) (map[string]interface{}, bool) {
		return map[string]interface{}{"index": r.Index, "error": r.ErrorDetail}, !r.Succeeded
	})

	response := map[string]interface{}{
		"run_id":          done.RunID,
		"status":          done.Status,
		"text":            done.FinalText,
		"total_sections":  state.Total,
		"failed_sections": failed,
	}
	h.logger.Info("anonymize_text finished", "run_id", done.RunID, "status", done.Status, "failed", len(failed))

	return jsonResult(response)
}

// ListExamples handles the list_examples tool
func (h *Handlers) ListExamples(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	settings, err := h.settings.Load()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load settings: %v", err)), nil
	}

	response := map[string]interface{}{
		"instruction": settings.Instruction,
		"examples":    settings.Examples,
		"count":       len(settings.Examples),
		"is_default":  settings.IsDefault(),
	}
	return jsonResult(response)
}

// ListRuns handles the list_runs tool
func (h *Handlers) ListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.history == nil {
		return mcp.NewToolResultError("run history is disabled (ANONYMIZER_HISTORY=false)"), nil
	}

	limit := int(request.GetFloat("limit", 10))
	runs, err := h.history.ListRuns(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	response := map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	}
	return jsonResult(response)
}

func jsonResult(response interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}

// Shutdown waits for an in-flight anonymization to finish
func (h *Handlers) Shutdown() {
	h.runMu.Lock()
	defer h.runMu.Unlock()
}
