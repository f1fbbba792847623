package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryGenerator wraps a Generator with exponential backoff.
type RetryGenerator struct {
	inner      Generator
	maxRetries int
	baseDelay  time.Duration
}

// WithRetry retries transient failures of g up to maxRetries times.
func WithRetry(g Generator, maxRetries int) *RetryGenerator {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryGenerator{inner: g, maxRetries: maxRetries, baseDelay: 500 * time.Millisecond}
}

// Name returns the wrapped generator's name.
func (r *RetryGenerator) Name() string { return r.inner.Name() }

// Generate calls the wrapped generator, retrying on rate limits, server
// errors and connection problems.
func (r *RetryGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		text, err := r.inner.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
		if attempt == r.maxRetries {
			break
		}
		if err := r.backoff(ctx, attempt); err != nil {
			return "", lastErr
		}
	}
	return "", fmt.Errorf("after %d retries: %w", r.maxRetries, lastErr)
}

func isRetryable(err error) bool {
	msg := err.Error()
	for _, s := range []string{"429", "500", "502", "503", "504", "RESOURCE_EXHAUSTED", "UNAVAILABLE", "connection refused", "timeout", "EOF", "reset by peer"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (r *RetryGenerator) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(r.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
