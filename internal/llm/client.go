// ABOUTME: Inference client contract shared by every local model backend
// ABOUTME: Defines sampling knobs and the typed InferenceError the pipeline classifies
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

const (
	// DefaultTemperature controls randomness of token selection
	DefaultTemperature = 0.5
	// DefaultTopP is the nucleus-sampling cutoff
	DefaultTopP = 0.5
	// DefaultRepeatPenalty down-weights recently used tokens
	DefaultRepeatPenalty = 1.2
	// DefaultMaxTokens caps generated tokens per call
	DefaultMaxTokens = 1000
	// DefaultKeepAlive keeps the model resident between chunks
	DefaultKeepAlive = 30 * time.Minute
	// DefaultTimeout bounds a single inference call
	DefaultTimeout = 300 * time.Second
)

// SamplingConfig holds opaque generation knobs forwarded to the backend
type SamplingConfig struct {
	Temperature   float64       `json:"temperature"`
	TopP          float64       `json:"top_p"`
	RepeatPenalty float64       `json:"repeat_penalty"`
	MaxTokens     int           `json:"max_tokens"`
	KeepAlive     time.Duration `json:"keep_alive,omitempty"` // 0 = backend default
}

// DefaultSampling returns the sampling configuration used when none is configured
func DefaultSampling() SamplingConfig {
	return SamplingConfig{
		Temperature:   DefaultTemperature,
		TopP:          DefaultTopP,
		RepeatPenalty: DefaultRepeatPenalty,
		MaxTokens:     DefaultMaxTokens,
		KeepAlive:     DefaultKeepAlive,
	}
}

// Client is a synchronous, one-prompt-in one-text-out model backend.
// Implementations serialize calls; the pipeline never issues overlapping requests.
type Client interface {
	Infer(ctx context.Context, prompt string, cfg SamplingConfig) (string, error)
}

// Pinger is implemented by backends that can check reachability and model state up front
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrorKind classifies inference failures
type ErrorKind string

const (
	KindUnreachable  ErrorKind = "unreachable"
	KindTimeout      ErrorKind = "timeout"
	KindInvalidModel ErrorKind = "invalid_model"
	KindMalformed    ErrorKind = "malformed"
	KindCanceled     ErrorKind = "canceled"
	KindBackend      ErrorKind = "backend"
)

// ErrEmptyResponse is wrapped when a backend returns no text
var ErrEmptyResponse = errors.New("empty response from model")

// InferenceError is the typed failure returned by every backend
type InferenceError struct {
	Kind    ErrorKind
	Backend string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, or KindBackend for untyped errors
func KindOf(err error) ErrorKind {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindBackend
}

// IsUnreachable reports whether err means the backend could not be contacted at all
func IsUnreachable(err error) bool {
	return err != nil && KindOf(err) == KindUnreachable
}

// newError wraps err with an explicit kind
func newError(backend string, kind ErrorKind, err error) *InferenceError {
	return &InferenceError{Kind: kind, Backend: backend, Err: err}
}

// classify wraps a transport-level error into an InferenceError
func classify(backend string, err error) error {
	if err == nil {
		return nil
	}

	var ie *InferenceError
	if errors.As(err, &ie) {
		return err
	}

	kind := KindBackend
	var netErr net.Error
	var opErr *net.OpError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindUnreachable
	case errors.As(err, &opErr) && opErr.Op == "dial":
		kind = KindUnreachable
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "no such host"):
		kind = KindUnreachable
	}

	return newError(backend, kind, err)
}

// cleanOutput trims generated text and rejects empty output
func cleanOutput(backend, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", newError(backend, KindMalformed, ErrEmptyResponse)
	}
	return text, nil
}
