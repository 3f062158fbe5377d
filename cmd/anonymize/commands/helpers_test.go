// ABOUTME: Shared fixtures for command tests
// ABOUTME: Isolated XDG dirs, a fake Ollama daemon, and a root command runner
package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"
	"github.com/ollama/ollama/api"
)

// testEnv isolates config and data dirs and clears anonymizer settings
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	for _, key := range []string{
		"ANONYMIZER_BACKEND", "ANONYMIZER_BASE_URL", "ANONYMIZER_MODEL",
		"ANONYMIZER_SETTINGS_BACKEND", "ANONYMIZER_HISTORY", "ANONYMIZER_PARTIAL",
		"ANONYMIZER_PREFLIGHT", "ANONYMIZER_HEADER_DELIMITER", "ANONYMIZER_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	return dir
}

// fakeDaemon answers generate requests by replacing "Alice" in the chunk body;
// bodies containing "boom" get a 500
type fakeDaemon struct {
	showStatus int
	generates  int
}

func (f *fakeDaemon) start(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		f.generates++
		var req api.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding generate request: %v", err)
		}
		body := chunkBody(req.Prompt)
		if strings.Contains(body, "boom") {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model crashed"}`))
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		_ = enc.Encode(api.GenerateResponse{Model: req.Model, Response: strings.ReplaceAll(body, "Alice", "***")})
		_ = enc.Encode(api.GenerateResponse{Model: req.Model, Done: true})
	})
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		if f.showStatus != 0 {
			w.WriteHeader(f.showStatus)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"modelfile":"FROM mistral"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("ANONYMIZER_BASE_URL", srv.URL)
	return srv.URL
}

// chunkBody extracts the text awaiting completion from a prompt
func chunkBody(prompt string) string {
	start := strings.LastIndex(prompt, "Original: ")
	end := strings.LastIndex(prompt, "\nDe-identified: ")
	if start < 0 || end < start {
		return ""
	}
	return prompt[start+len("Original: ") : end]
}

// execute runs the root command with args and returns stdout and stderr
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
