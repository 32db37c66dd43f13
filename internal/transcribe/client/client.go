// Package client provides transcription client implementations.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/config"
	"github.com/m-mizutani/goerr/v2"
)

// TranscriptionClient sends audio and receives text.
type TranscriptionClient interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*TranscriptionResult, error)
}

// TranscribeOptions configures the transcription request.
type TranscribeOptions struct {
	Language string
	Model    string
}

// TranscriptionResult contains the API response.
type TranscriptionResult struct {
	Text     string
	Language string
	Duration float64
}

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 5 * time.Minute

var (
	// ErrUnknownBackend is returned by New for an unrecognised backend name.
	ErrUnknownBackend = errors.New("unknown transcription backend")
	// ErrMissingAPIKey is returned by New when the openai backend has no key.
	ErrMissingAPIKey = errors.New("openai api key not set")
)

// APIError is a non-200 answer from a transcription service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Backend names accepted by New.
const (
	BackendOpenAI     = "openai"
	BackendWhisperASR = "whisper_asr"
)

// New builds the configured backend wrapped with retries and a circuit
// breaker. Construction errors wrap config.ErrConfig.
func New(cfg *config.Config) (TranscriptionClient, TranscribeOptions, error) {
	var (
		base TranscriptionClient
		opts TranscribeOptions
	)

	switch cfg.Backend {
	case BackendOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, opts, goerr.Wrap(errors.Join(config.ErrConfig, ErrMissingAPIKey),
				"set OPENAI_API_KEY or openai.api_key")
		}
		base = NewOpenAIClient(cfg.OpenAI.APIKey,
			WithBaseURL(cfg.OpenAI.BaseURL),
			WithMaxUploadMB(cfg.OpenAI.MaxUploadMB),
			WithSplitter(NewSplitter(WithFFprobePath(cfg.FFprobePath))),
		)
		opts = TranscribeOptions{Language: cfg.OpenAI.Language, Model: cfg.OpenAI.Model}

	case BackendWhisperASR:
		var asrOpts []WhisperASROption
		if cfg.WhisperASR.TimeoutSeconds > 0 {
			asrOpts = append(asrOpts, WithTimeout(time.Duration(cfg.WhisperASR.TimeoutSeconds)*time.Second))
		}
		base = NewWhisperASRClient(cfg.WhisperASR.URL, asrOpts...)
		opts = TranscribeOptions{Language: cfg.WhisperASR.Language}

	default:
		return nil, opts, goerr.Wrap(errors.Join(config.ErrConfig, ErrUnknownBackend),
			"unsupported backend", goerr.V("backend", cfg.Backend))
	}

	retry := NewRetryClient(base,
		WithRetryCount(cfg.Retry.Count),
		WithBaseDelay(time.Duration(cfg.Retry.BaseDelayMs)*time.Millisecond),
	)
	return NewBreakerClient(retry, cfg.Backend, WithTripAfter(cfg.Retry.BreakerThreshold)), opts, nil
}
