// ABOUTME: Backend factory selecting an inference client by name
// ABOUTME: Applies the retry decorator uniformly to every backend
package llm

import (
	"fmt"
	"time"
)

// Options selects and configures a backend
type Options struct {
	Backend    string
	BaseURL    string
	Model      string
	APIKey     string
	LlamaBin   string
	LlamaModel string
	LlamaArgs  []string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Backends lists the supported backend names
func Backends() []string {
	return []string{BackendOllama, BackendOpenAI, BackendLlamaCpp}
}

// New builds the configured backend client
func New(opts Options) (Client, error) {
	var (
		client Client
		err    error
	)

	switch opts.Backend {
	case "", BackendOllama:
		client, err = NewOllamaClient(OllamaConfig{
			BaseURL: opts.BaseURL,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		})
	case BackendOpenAI:
		client, err = NewOpenAIClientWithConfig(&ClientConfig{
			APIKey:  opts.APIKey,
			BaseURL: opts.BaseURL,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		})
	case BackendLlamaCpp:
		client, err = NewLlamaCppClient(LlamaCppConfig{
			BinaryPath: opts.LlamaBin,
			ModelPath:  opts.LlamaModel,
			ExtraArgs:  opts.LlamaArgs,
			Timeout:    opts.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q (want one of %v)", opts.Backend, Backends())
	}
	if err != nil {
		return nil, err
	}

	return WithRetry(client, opts.MaxRetries, opts.RetryDelay), nil
}
