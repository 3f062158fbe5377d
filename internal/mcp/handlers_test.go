// ABOUTME: Tests for MCP tool handlers with a stub inference client
// ABOUTME: Checks JSON responses and error results for each tool
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/anonymizer/internal/app"
	"github.com/harper/anonymizer/internal/config"
	"github.com/harper/anonymizer/internal/core"
	"github.com/harper/anonymizer/internal/llm"
	"github.com/harper/anonymizer/internal/models"
	"github.com/harper/anonymizer/internal/storage"
	"github.com/harper/anonymizer/internal/storage/sqlite"
)

type stubClient struct {
	err error
}

func (s stubClient) Infer(ctx context.Context, prompt string, cfg llm.SamplingConfig) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	body := prompt[strings.LastIndex(prompt, "Original: ")+len("Original: ") : strings.LastIndex(prompt, "\nDe-identified: ")]
	if strings.Contains(body, "fail") {
		return "", errors.New("model crashed")
	}
	return strings.ReplaceAll(body, "Alice", "***"), nil
}

type fakeHistory struct {
	runs []sqlite.RunSummary
}

func (f fakeHistory) ListRuns(limit int) ([]sqlite.RunSummary, error) {
	if limit > 0 && limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func newHandlers(t *testing.T, client llm.Client, history HistoryReader) *Handlers {
	t.Helper()
	settings := storage.NewFileStore(t.TempDir())
	deps := Deps{
		Pipeline: core.NewPipeline(client, core.PipelineConfig{}),
		Settings: settings,
		History:  history,
		RunSettings: func() (core.Settings, error) {
			prompt, err := settings.Load()
			return core.Settings{Prompt: prompt, Sampling: llm.DefaultSampling()}, err
		},
	}
	return RegisterTools(mcpserver.NewMCPServer("test", "0.0.0"), deps)
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want mcp.TextContent", result.Content[0])
	}
	return text.Text
}

func TestAnonymizeText(t *testing.T) {
	h := newHandlers(t, stubClient{}, nil)

	result, err := h.AnonymizeText(context.Background(), callRequest(map[string]interface{}{
		"text": "# Intro\nAlice wrote this.\n# Notes\nplease fail here",
	}))
	if err != nil {
		t.Fatalf("AnonymizeText() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	var response struct {
		Status         string                   `json:"status"`
		Text           string                   `json:"text"`
		TotalSections  int                      `json:"total_sections"`
		FailedSections []map[string]interface{} `json:"failed_sections"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &response); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}

	if response.Status != "completed" {
		t.Errorf("status = %s, want completed", response.Status)
	}
	want := "# Intro\n*** wrote this.\n# Notes\nplease fail here"
	if response.Text != want {
		t.Errorf("text = %q, want %q", response.Text, want)
	}
	if response.TotalSections != 2 || len(response.FailedSections) != 1 {
		t.Errorf("sections = %d total, %d failed", response.TotalSections, len(response.FailedSections))
	}
}

func TestAnonymizeText_MissingText(t *testing.T) {
	h := newHandlers(t, stubClient{}, nil)

	result, err := h.AnonymizeText(context.Background(), callRequest(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("AnonymizeText() error = %v", err)
	}
	if !result.IsError {
		t.Error("missing text should produce a tool error")
	}
}

func TestAnonymizeText_BackendDown(t *testing.T) {
	down := &llm.InferenceError{Kind: llm.KindUnreachable, Backend: "stub", Err: errors.New("connection refused")}
	h := newHandlers(t, stubClient{err: down}, nil)

	result, _ := h.AnonymizeText(context.Background(), callRequest(map[string]interface{}{"text": "Alice"}))
	if !result.IsError {
		t.Fatal("unreachable backend should produce a tool error")
	}
	if !strings.Contains(resultText(t, result), "unavailable") {
		t.Errorf("error text = %q", resultText(t, result))
	}
}

func TestListExamples(t *testing.T) {
	h := newHandlers(t, stubClient{}, nil)

	result, err := h.ListExamples(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("ListExamples() error = %v", err)
	}

	var response struct {
		Count     int                     `json:"count"`
		IsDefault bool                    `json:"is_default"`
		Examples  []models.FewShotExample `json:"examples"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &response); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if response.Count != 3 || !response.IsDefault || len(response.Examples) != 3 {
		t.Errorf("response = %+v", response)
	}
}

func TestListRuns(t *testing.T) {
	history := fakeHistory{runs: []sqlite.RunSummary{
		{RunID: "b", Status: models.RunCompleted, StartedAt: time.Now()},
		{RunID: "a", Status: models.RunCancelled, StartedAt: time.Now().Add(-time.Hour)},
	}}
	h := newHandlers(t, stubClient{}, history)

	result, err := h.ListRuns(context.Background(), callRequest(map[string]interface{}{"limit": float64(1)}))
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}

	var response struct {
		Count int                  `json:"count"`
		Runs  []sqlite.RunSummary `json:"runs"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &response); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if response.Count != 1 || response.Runs[0].RunID != "b" {
		t.Errorf("response = %+v", response)
	}
}

func TestListRuns_HistoryDisabled(t *testing.T) {
	h := newHandlers(t, stubClient{}, nil)

	result, _ := h.ListRuns(context.Background(), callRequest(nil))
	if !result.IsError {
		t.Error("disabled history should produce a tool error")
	}
}

func TestNewServer_WiresApp(t *testing.T) {
	history, err := sqlite.NewHistoryInMemory("test", "stub")
	if err != nil {
		t.Fatalf("NewHistoryInMemory() error = %v", err)
	}
	cfg := &config.Config{
		HeaderDelimiter: "#",
		OversizePolicy:  string(core.OversizeAllow),
		SettingsBackend: config.SettingsBackendFile,
	}
	a := app.Assemble(cfg, nil, stubClient{}, storage.NewFileStore(t.TempDir()), history)
	defer a.Close()

	server, handlers := NewServer(a, "1.0.0")
	if server == nil || handlers == nil {
		t.Fatal("NewServer() returned nil")
	}

	result, err := handlers.AnonymizeText(context.Background(), callRequest(map[string]interface{}{"text": "Alice", "name": "note.txt"}))
	if err != nil || result.IsError {
		t.Fatalf("AnonymizeText() = %v, %v", resultText(t, result), err)
	}

	result, err = handlers.ListRuns(context.Background(), callRequest(nil))
	if err != nil || result.IsError {
		t.Fatalf("ListRuns() = %v, %v", resultText(t, result), err)
	}
	if !strings.Contains(resultText(t, result), "note.txt") {
		t.Errorf("ListRuns should include the recorded run, got %s", resultText(t, result))
	}
}

func TestNewServer_WithoutHistory(t *testing.T) {
	cfg := &config.Config{HeaderDelimiter: "#", SettingsBackend: config.SettingsBackendFile}
	a := app.Assemble(cfg, nil, stubClient{}, storage.NewFileStore(t.TempDir()), nil)

	_, handlers := NewServer(a, "1.0.0")
	result, err := handlers.ListRuns(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if !result.IsError {
		t.Error("ListRuns without history should be a tool error")
	}
}
