// ABOUTME: Tests for the OpenAI-compatible backend against an httptest server
// ABOUTME: Checks completion parsing, model listing, and 404 mapping
package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func newTestOpenAI(t *testing.T, handler http.Handler) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewOpenAIClientWithConfig(&ClientConfig{
		BaseURL: srv.URL + "/v1",
		Model:   "mistral",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClientWithConfig() error = %v", err)
	}
	return client
}

func TestNewOpenAIClient(t *testing.T) {
	if _, err := NewOpenAIClientWithConfig(&ClientConfig{}); err == nil {
		t.Error("expected error for missing model")
	}

	client, err := NewOpenAIClientWithConfig(&ClientConfig{Model: "m"})
	if err != nil {
		t.Fatalf("NewOpenAIClientWithConfig() error = %v", err)
	}
	if client.GetClient() == nil {
		t.Error("GetClient() returned nil")
	}
}

func TestOpenAIClient_Infer(t *testing.T) {
	var got openai.CompletionRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","model":"mistral","choices":[{"text":"  Lives in ***. \n","index":0,"finish_reason":"stop"}]}`))
	})
	client := newTestOpenAI(t, mux)

	text, err := client.Infer(context.Background(), "Original: Lives in Boston.\nDe-identified: ", DefaultSampling())
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if text != "Lives in ***." {
		t.Errorf("Infer() = %q", text)
	}
	if got.Model != "mistral" || got.MaxTokens != 1000 {
		t.Errorf("request = %+v", got)
	}
	if got.Temperature != 0.5 || got.TopP != 0.5 {
		t.Errorf("sampling = %v/%v, want 0.5/0.5", got.Temperature, got.TopP)
	}
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","choices":[]}`))
	})
	client := newTestOpenAI(t, mux)

	_, err := client.Infer(context.Background(), "prompt", DefaultSampling())
	if KindOf(err) != KindMalformed {
		t.Errorf("KindOf(err) = %s, want %s", KindOf(err), KindMalformed)
	}
}

func TestOpenAIClient_ModelNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"model \"mistral\" not found","type":"invalid_request_error"}}`))
	})
	client := newTestOpenAI(t, mux)

	_, err := client.Infer(context.Background(), "prompt", DefaultSampling())
	if KindOf(err) != KindInvalidModel {
		t.Errorf("KindOf(err) = %s, want %s (err: %v)", KindOf(err), KindInvalidModel, err)
	}
}

func TestOpenAIClient_Ping(t *testing.T) {
	tests := []struct {
		name    string
		models  string
		wantErr bool
	}{
		{"model served", `{"object":"list","data":[{"id":"llama3","object":"model"},{"id":"mistral","object":"model"}]}`, false},
		{"model missing", `{"object":"list","data":[{"id":"llama3","object":"model"}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.models))
			})
			client := newTestOpenAI(t, mux)

			err := client.Ping(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Ping() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && KindOf(err) != KindInvalidModel {
				t.Errorf("KindOf(err) = %s, want %s", KindOf(err), KindInvalidModel)
			}
		})
	}
}
