// ABOUTME: Embedded llama.cpp backend running one llama-cli process per inference
// ABOUTME: Keeps generation on this machine without a daemon; keep-alive does not apply
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// BackendLlamaCpp is the registry name of the embedded llama.cpp backend
	BackendLlamaCpp = "llamacpp"
	// DefaultLlamaBinary is looked up on PATH
	DefaultLlamaBinary = "llama-cli"
)

// LlamaCppConfig configures the embedded runtime
type LlamaCppConfig struct {
	BinaryPath string
	ModelPath  string
	ExtraArgs  []string
	Timeout    time.Duration
}

// LlamaCppClient executes llama-cli for each prompt
type LlamaCppClient struct {
	binaryPath string
	modelPath  string
	extraArgs  []string
	timeout    time.Duration
	mu         sync.Mutex
}

// NewLlamaCppClient creates a client for a GGUF model file
func NewLlamaCppClient(cfg LlamaCppConfig) (*LlamaCppClient, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("llama.cpp model path is required")
	}
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = DefaultLlamaBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &LlamaCppClient{
		binaryPath: cfg.BinaryPath,
		modelPath:  cfg.ModelPath,
		extraArgs:  cfg.ExtraArgs,
		timeout:    cfg.Timeout,
	}, nil
}

// Infer runs llama-cli with the prompt and returns its stdout
func (c *LlamaCppClient) Infer(ctx context.Context, prompt string, cfg SamplingConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binaryPath, c.args(prompt, cfg)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second // children of a killed wrapper script can hold the pipes open

	if err := cmd.Run(); err != nil {
		return "", c.wrap(ctx, err, stderr.String())
	}

	return cleanOutput(BackendLlamaCpp, stdout.String())
}

// Ping checks that the binary and model file are present
func (c *LlamaCppClient) Ping(ctx context.Context) error {
	if _, err := exec.LookPath(c.binaryPath); err != nil {
		return newError(BackendLlamaCpp, KindUnreachable, err)
	}
	if _, err := os.Stat(c.modelPath); err != nil {
		return newError(BackendLlamaCpp, KindInvalidModel, err)
	}
	return nil
}

func (c *LlamaCppClient) args(prompt string, cfg SamplingConfig) []string {
	args := []string{
		"-m", c.modelPath,
		"-p", prompt,
		"--temp", strconv.FormatFloat(cfg.Temperature, 'f', -1, 64),
		"--top-p", strconv.FormatFloat(cfg.TopP, 'f', -1, 64),
		"--no-display-prompt",
		"-no-cnv", // chat-template models otherwise start an interactive session and wait on stdin
	}
	if cfg.RepeatPenalty > 0 {
		args = append(args, "--repeat-penalty", strconv.FormatFloat(cfg.RepeatPenalty, 'f', -1, 64))
	}
	if cfg.MaxTokens > 0 {
		args = append(args, "-n", strconv.Itoa(cfg.MaxTokens))
	}
	return append(args, c.extraArgs...)
}

func (c *LlamaCppClient) wrap(ctx context.Context, err error, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return newError(BackendLlamaCpp, KindUnreachable, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return classify(BackendLlamaCpp, ctxErr)
	}
	if strings.Contains(stderr, "failed to load model") {
		return newError(BackendLlamaCpp, KindInvalidModel, fmt.Errorf("%w: %s", err, lastLine(stderr)))
	}
	return newError(BackendLlamaCpp, KindBackend, fmt.Errorf("%w: %s", err, lastLine(stderr)))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
