// Package stabilizer waits for a recording to finish being written before it
// is handed to a run.
package stabilizer

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ErrStabilizationTimeout is returned when the file does not stabilize within the timeout.
var ErrStabilizationTimeout = errors.New("stabilization timeout: file did not stabilize in time")

// Stabilizer waits for a file to finish writing.
type Stabilizer interface {
	WaitForStable(ctx context.Context, path string) error
}

// PollStabilizer implements Stabilizer by polling size and modification time.
type PollStabilizer struct {
	// Interval is the duration between checks.
	Interval time.Duration
	// Checks is the number of consecutive unchanged checks required.
	Checks int
	// Timeout bounds the wait when ctx has no deadline. Zero means no bound.
	Timeout time.Duration
}

// NewPollStabilizer creates a new polling-based stabilizer.
func NewPollStabilizer(interval time.Duration, checks int) *PollStabilizer {
	return &PollStabilizer{Interval: interval, Checks: checks}
}

// WaitForStable returns once the file has kept the same size and mtime for
// Checks consecutive polls.
func (s *PollStabilizer) WaitForStable(ctx context.Context, path string) error {
	internal := false
	if s.Timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.Timeout)
			defer cancel()
			internal = true
		}
	}

	var (
		lastSize    int64 = -1
		lastMod     time.Time
		stableCount int
	)
	for stableCount < s.Checks {
		select {
		case <-ctx.Done():
			if internal && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return goerr.Wrap(ErrStabilizationTimeout, "file kept changing",
					goerr.V("path", path), goerr.V("timeout", s.Timeout))
			}
			return ctx.Err()
		case <-time.After(s.Interval):
		}

		info, err := os.Stat(path)
		if err != nil {
			return goerr.Wrap(err, "stat while stabilizing", goerr.V("path", path))
		}

		if info.Size() == lastSize && info.ModTime().Equal(lastMod) {
			stableCount++
		} else {
			stableCount = 0
			lastSize = info.Size()
			lastMod = info.ModTime()
		}
	}
	return nil
}
