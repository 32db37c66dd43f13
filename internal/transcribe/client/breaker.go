package client

import (
	"context"
	"errors"
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/logging"
	"github.com/m-mizutani/goerr/v2"
	gobreaker "github.com/sony/gobreaker/v2"
)

// DefaultTripAfter is the number of consecutive failures that opens the
// breaker.
const DefaultTripAfter = 3

// DefaultOpenTimeout is how long an open breaker rejects calls before it
// lets one through again.
const DefaultOpenTimeout = 2 * time.Minute

// ErrBackendUnavailable is returned without calling the backend while the
// breaker is open.
var ErrBackendUnavailable = errors.New("transcription backend unavailable")

// BreakerClient stops calling a backend that keeps failing, so the rest of a
// run fails fast instead of waiting out every retry schedule.
type BreakerClient struct {
	client  TranscriptionClient
	cb      *gobreaker.CircuitBreaker[*TranscriptionResult]
	name    string
	trip    uint32
	timeout time.Duration
}

// BreakerOption configures a BreakerClient.
type BreakerOption func(*BreakerClient)

// WithTripAfter sets the consecutive failure threshold.
func WithTripAfter(n int) BreakerOption {
	return func(b *BreakerClient) {
		if n > 0 {
			b.trip = uint32(n)
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(b *BreakerClient) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBreakerClient wraps client with a breaker called name.
func NewBreakerClient(client TranscriptionClient, name string, opts ...BreakerOption) *BreakerClient {
	b := &BreakerClient{
		client:  client,
		name:    name,
		trip:    DefaultTripAfter,
		timeout: DefaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb = gobreaker.NewCircuitBreaker[*TranscriptionResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.trip
		},
		// Cancellation says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Default().Warn("transcription breaker state changed",
				"backend", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

// Transcribe implements TranscriptionClient.
func (b *BreakerClient) Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*TranscriptionResult, error) {
	res, err := b.cb.Execute(func() (*TranscriptionResult, error) {
		return b.client.Transcribe(ctx, audioPath, opts)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, goerr.Wrap(errors.Join(ErrBackendUnavailable, err), "breaker rejected request",
			goerr.V("backend", b.name), goerr.V("path", audioPath))
	}
	return res, err
}

// State reports the breaker state, mainly for logging and tests.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}
