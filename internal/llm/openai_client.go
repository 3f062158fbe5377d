// ABOUTME: OpenAI-compatible completion backend (Ollama /v1, llama.cpp server, LM Studio)
// ABOUTME: Uses go-openai; repeat penalty and keep-alive have no equivalent and are ignored
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// BackendOpenAI is the registry name of the OpenAI-compatible backend
	BackendOpenAI = "openai"
	// DefaultOpenAIURL points at Ollama's OpenAI-compatible endpoint
	DefaultOpenAIURL = "http://127.0.0.1:11434/v1"
)

// ClientConfig holds configuration for the OpenAI-compatible client
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIClient wraps go-openai for local OpenAI-compatible servers
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	mu      sync.Mutex
}

// NewOpenAIClientWithConfig creates a new OpenAI-compatible client
func NewOpenAIClientWithConfig(config *ClientConfig) (*OpenAIClient, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultOpenAIURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	// Local servers ignore the key but go-openai always sends the header
	oaiConfig := openai.DefaultConfig(config.APIKey)
	oaiConfig.BaseURL = config.BaseURL

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(oaiConfig),
		model:   config.Model,
		timeout: config.Timeout,
	}, nil
}

// GetClient returns the underlying OpenAI client for direct use
func (c *OpenAIClient) GetClient() *openai.Client {
	return c.client
}

// Infer runs a plain prompt completion
func (c *OpenAIClient) Infer(ctx context.Context, prompt string, cfg SamplingConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       c.model,
		Prompt:      prompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
		TopP:        float32(cfg.TopP),
	})
	if err != nil {
		return "", c.wrap(err)
	}

	if len(resp.Choices) == 0 {
		return "", newError(BackendOpenAI, KindMalformed, fmt.Errorf("no completion choices returned"))
	}

	return cleanOutput(BackendOpenAI, resp.Choices[0].Text)
}

// Ping lists the server's models and checks the configured one is available
func (c *OpenAIClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	models, err := c.client.ListModels(ctx)
	if err != nil {
		return c.wrap(err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	return newError(BackendOpenAI, KindInvalidModel, fmt.Errorf("model %q not served", c.model))
}

func (c *OpenAIClient) wrap(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return newError(BackendOpenAI, KindInvalidModel, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusNotFound {
		return newError(BackendOpenAI, KindInvalidModel, err)
	}
	return classify(BackendOpenAI, err)
}
