// ABOUTME: Retry decorator for inference clients with exponential backoff
// ABOUTME: Gives up immediately on missing models and cancellation
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/harper/anonymizer/internal/util"
)

// RetryClient retries failed inference calls on the wrapped client
type RetryClient struct {
	next       Client
	maxRetries int
	retryDelay time.Duration
}

// WithRetry wraps next; maxRetries <= 0 returns next unchanged
func WithRetry(next Client, maxRetries int, retryDelay time.Duration) Client {
	if maxRetries <= 0 {
		return next
	}
	return &RetryClient{next: next, maxRetries: maxRetries, retryDelay: retryDelay}
}

// Infer calls the wrapped client up to maxRetries+1 times
func (r *RetryClient) Infer(ctx context.Context, prompt string, cfg SamplingConfig) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := util.SleepContext(ctx, util.CalculateBackoff(r.retryDelay, attempt)); err != nil {
				return "", classify("retry", err)
			}
		}

		text, err := r.next.Infer(ctx, prompt, cfg)
		if err == nil {
			return text, nil
		}
		lastErr = err

		switch KindOf(err) {
		case KindInvalidModel, KindCanceled:
			return "", err
		}
	}

	return "", fmt.Errorf("inference failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

// Ping forwards to the wrapped client when it supports preflight checks
func (r *RetryClient) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
