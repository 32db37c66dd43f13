package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultRetryCount is the default number of retry attempts.
const DefaultRetryCount = 3

// DefaultBaseDelay is the initial delay for exponential backoff.
const DefaultBaseDelay = 1 * time.Second

// RetryClient wraps a TranscriptionClient with retry logic and exponential backoff.
type RetryClient struct {
	client    TranscriptionClient
	maxRetry  int
	baseDelay time.Duration
}

// RetryOption configures the RetryClient.
type RetryOption func(*RetryClient)

// WithRetryCount sets the maximum number of retry attempts.
func WithRetryCount(n int) RetryOption {
	return func(c *RetryClient) {
		if n >= 0 {
			c.maxRetry = n
		}
	}
}

// WithBaseDelay sets the initial delay for exponential backoff.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *RetryClient) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// NewRetryClient creates a new RetryClient wrapping the given TranscriptionClient.
func NewRetryClient(client TranscriptionClient, opts ...RetryOption) *RetryClient {
	c := &RetryClient{
		client:    client,
		maxRetry:  DefaultRetryCount,
		baseDelay: DefaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe sends an audio file for transcription with retry logic.
// It retries on connection errors, 429 and 5xx responses, but not on other
// 4xx client errors.
func (c *RetryClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*TranscriptionResult, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetry; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * (1 << (attempt - 1))
			logging.From(ctx).Warn("retrying transcription",
				"attempt", attempt, "max", c.maxRetry, "delay", delay, "path", audioPath, "error", lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.client.Transcribe(ctx, audioPath, opts)
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, goerr.Wrap(lastErr, "transcription failed after retries", goerr.V("retries", c.maxRetry))
}

// isRetryable reports whether err is a network failure or a temporary API
// status.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host")
}
