package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for LLM calls.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts (0 = no retries)
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries (caps exponential backoff)
	Timeout    time.Duration // Per-request timeout
}

// DefaultRetryConfig returns a sensible default configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 8,
		RetryDelay: 2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    2 * time.Minute,
	}
}

// RetryProvider wraps a Provider with timeout and retry logic.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// NewRetryProvider wraps an existing provider with retry logic.
func NewRetryProvider(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryProvider{inner: inner, config: config}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

// Complete sends a prompt with timeout and retry logic.
func (r *RetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	var resp *Response
	err := r.attempt(ctx, func(attemptCtx context.Context) error {
		var callErr error
		resp, callErr = r.inner.Complete(attemptCtx, prompt, opts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Embed sends an embedding request with timeout and retry logic.
func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.attempt(ctx, func(attemptCtx context.Context) error {
		var callErr error
		vectors, callErr = r.inner.Embed(attemptCtx, texts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// attempt runs call with per-attempt timeouts and exponential backoff between
// attempts.
func (r *RetryProvider) attempt(ctx context.Context, call func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		err := call(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

// backoff returns the delay for the given attempt: RetryDelay * 2^(attempt-1),
// capped at MaxDelay.
func (r *RetryProvider) backoff(attempt int) time.Duration {
	delay := r.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > r.config.MaxDelay {
			return r.config.MaxDelay
		}
	}
	return delay
}

// isRetryable classifies errors from upstream services. Timeouts, network
// errors, 429s and 5xx are retryable; caller cancellation and other 4xx are
// not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := err.Error()

	if strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests") {
		// Daily token limits won't reset with retries
		if strings.Contains(errStr, "tokens per day") || strings.Contains(errStr, "TPD") {
			return false
		}
		return true
	}

	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, http.StatusText(http.StatusInternalServerError)) ||
		strings.Contains(errStr, http.StatusText(http.StatusBadGateway)) ||
		strings.Contains(errStr, http.StatusText(http.StatusServiceUnavailable)) ||
		strings.Contains(errStr, http.StatusText(http.StatusGatewayTimeout)) {
		return true
	}

	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") {
		return false
	}

	// Unknown errors: retry, transient upstream hiccups are common
	return true
}

// WrapWithRetry wraps a provider with retry logic derived from cfg.
func WrapWithRetry(provider Provider, cfg ProviderConfig) Provider {
	if provider == nil {
		return nil
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 && cfg.Timeout == 0 {
		maxRetries = 3
	}

	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = 1 * time.Second
	}

	return NewRetryProvider(provider, &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		MaxDelay:   30 * time.Second,
		Timeout:    timeout,
	})
}
