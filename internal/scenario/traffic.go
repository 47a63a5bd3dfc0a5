package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
)

const (
	// stableHold is how long a matching queue length must hold before it passes.
	stableHold = 100 * time.Millisecond
	// exitGrace is how long a failed write waits for a dying process to be reaped.
	exitGrace = 500 * time.Millisecond
)

var (
	errLengthMismatch = errors.New("queue length does not match")
	errStillRunning   = errors.New("processes still running")
)

// write sends n object writes through the proxy, one after another over the
// same connection.
func (r *Runner) write(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		status, err := r.post(ctx)
		if err != nil {
			err = fmt.Errorf("write %d of %d failed: %w", i+1, n, err)
			if exitErr := r.exitedWithin(ctx, exitGrace); exitErr != nil {
				return srverrors.NewSetupError("write", fmt.Errorf("%w: %v", exitErr, err))
			}
			return err
		}
		if status >= http.StatusBadRequest {
			zap.S().Warnw("write answered with error status", "target", r.target, "status", status)
		}
	}
	zap.S().Infow("writes sent", "count", n, "target", r.target)
	return nil
}

// exitedWithin reports a launched process that exits within grace. It returns
// nil when every process is still running afterwards.
func (r *Runner) exitedWithin(ctx context.Context, grace time.Duration) error {
	var exitErr error
	_ = backoff.Retry(func() error {
		if exitErr = r.exited(); exitErr == nil {
			return errStillRunning
		}
		return nil
	}, newPoll(ctx, grace))
	return exitErr
}

// writeUnchecked sends one write while the store is down. Its outcome is only logged.
func (r *Runner) writeUnchecked(ctx context.Context) {
	status, err := r.post(ctx)
	zap.S().Infow("write without store sent", "target", r.target, "status", status, "error", err)
}

func (r *Runner) post(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.target, strings.NewReader(r.cfg.Scenario.Payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// drained bodies keep the connection reusable
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

// assertLength waits up to AssertTimeout for the queue under key to reach
// expected entries and then compares exactly.
func (r *Runner) assertLength(ctx context.Context, point, key string, expected int64) error {
	var (
		observed int64
		lastErr  error
	)
	op := func() error {
		n, err := r.observer.Length(ctx, key)
		if err != nil {
			lastErr = err
			return err
		}
		observed, lastErr = n, nil
		if n != expected {
			return errLengthMismatch
		}
		return nil
	}
	_ = backoff.Retry(op, newPoll(ctx, r.cfg.Scenario.AssertTimeout))

	// a late duplicate must not pass on a briefly matching reading
	if lastErr == nil && observed == expected {
		if err := sleep(ctx, stableHold); err != nil {
			return err
		}
		_ = op()
	}

	if lastErr != nil {
		return fmt.Errorf("failed to observe queue %s at %s: %w", key, point, lastErr)
	}

	check := Check{Point: point, Key: key, Expected: expected, Observed: observed, Passed: observed == expected}
	r.report.Checks = append(r.report.Checks, check)

	if !check.Passed {
		r.logEvents(ctx, key)
		return srverrors.NewAssertionError(point, key, expected, observed)
	}
	zap.S().Infow("queue length verified", "point", point, "key", key, "length", observed)
	return nil
}

func (r *Runner) logEvents(ctx context.Context, key string) {
	events, err := r.observer.Events(ctx, key)
	if err != nil {
		zap.S().Warnw("failed to read queued events", "key", key, "error", err)
		return
	}
	for i, e := range events {
		if e.Raw != "" {
			zap.S().Infow("queued entry", "key", key, "index", i, "raw", e.Raw)
			continue
		}
		zap.S().Infow("queued event", "key", key, "index", i, "event", e.Event, "object_key", e.ObjectKey, "src", e.Src)
	}
}
