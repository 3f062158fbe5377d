// ABOUTME: Ollama backend streaming /api/generate through the official Go client
// ABOUTME: Forwards every sampling knob, including the keep_alive residency hint
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	// BackendOllama is the registry name of the Ollama backend
	BackendOllama = "ollama"
	// DefaultOllamaURL is where `ollama serve` listens by default
	DefaultOllamaURL = "http://127.0.0.1:11434"
	// DefaultModel matches the model tag the desktop app shipped with
	DefaultModel = "mistral:7b-instruct-q8_0"

	warmupKeepAlive = 10 * time.Minute
	warmupTimeout   = 180 * time.Second
)

// OllamaConfig holds connection settings for an Ollama daemon
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient talks to a local Ollama server
type OllamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	mu      sync.Mutex // one generate in flight; the loaded model is shared state
}

// NewOllamaClient creates a client for the given daemon and model
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model name is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL %q: %w", cfg.BaseURL, err)
	}

	return &OllamaClient{
		client:  api.NewClient(base, http.DefaultClient),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Model returns the configured model tag
func (c *OllamaClient) Model() string {
	return c.model
}

// Infer streams a completion and returns the collected, trimmed text
func (c *OllamaClient) Infer(ctx context.Context, prompt string, cfg SamplingConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream := true
	req := &api.GenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: ollamaOptions(cfg),
	}
	if cfg.KeepAlive > 0 {
		req.KeepAlive = &api.Duration{Duration: cfg.KeepAlive}
	}

	var sb strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", c.wrap(err)
	}

	return cleanOutput(BackendOllama, sb.String())
}

// Ping checks the model exists and warms it with a tiny non-streamed generate
func (c *OllamaClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Existence check that does not force a model load; only a 404 is conclusive
	if _, err := c.client.Show(ctx, &api.ShowRequest{Model: c.model}); err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return c.wrap(err)
		}
		if IsUnreachable(classify(BackendOllama, err)) {
			return c.wrap(err)
		}
	}

	// First cold load can be slow
	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	stream := false
	req := &api.GenerateRequest{
		Model:     c.model,
		Prompt:    "ping",
		Stream:    &stream,
		KeepAlive: &api.Duration{Duration: warmupKeepAlive},
		Options: map[string]any{
			"temperature": 0.0,
			"num_predict": 8,
		},
	}
	if err := c.client.Generate(ctx, req, func(api.GenerateResponse) error { return nil }); err != nil {
		return c.wrap(err)
	}
	return nil
}

// wrap classifies Ollama errors, mapping a missing model to KindInvalidModel
func (c *OllamaClient) wrap(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return newError(BackendOllama, KindInvalidModel,
			fmt.Errorf("model %q not found, run `ollama pull %s`: %w", c.model, c.model, err))
	}
	return classify(BackendOllama, err)
}

// ollamaOptions maps sampling knobs onto Ollama's option names
func ollamaOptions(cfg SamplingConfig) map[string]any {
	opts := map[string]any{
		"temperature": cfg.Temperature,
		"top_p":       cfg.TopP,
	}
	if cfg.RepeatPenalty > 0 {
		opts["repeat_penalty"] = cfg.RepeatPenalty
	}
	if cfg.MaxTokens > 0 {
		opts["num_predict"] = cfg.MaxTokens
	}
	return opts
}
