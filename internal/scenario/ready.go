package scenario

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	pollInitialInterval = 50 * time.Millisecond
	pollMaxInterval     = 500 * time.Millisecond
	dialTimeout         = time.Second
)

type readinessCheck func(ctx context.Context) error

// newPoll returns a backoff giving up after limit. A zero limit allows a single attempt.
func newPoll(ctx context.Context, limit time.Duration) backoff.BackOffContext {
	if limit <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pollInitialInterval
	b.MaxInterval = pollMaxInterval
	b.MaxElapsedTime = limit
	return backoff.WithContext(b, ctx)
}

// waitReady polls checks until all of them pass or ReadyTimeout expires. A
// launched process exiting in the meantime ends the wait immediately.
func (r *Runner) waitReady(ctx context.Context, checks ...readinessCheck) error {
	started := time.Now()
	op := func() error {
		if err := r.exited(); err != nil {
			return backoff.Permanent(err)
		}
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		zap.S().Debugw("not ready yet", "error", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(op, newPoll(ctx, r.cfg.Scenario.ReadyTimeout), notify); err != nil {
		return fmt.Errorf("not ready after %s: %w", time.Since(started).Round(time.Millisecond), err)
	}
	zap.S().Infow("ready", "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// exited returns an error when a launched process is no longer running.
func (r *Runner) exited() error {
	for _, c := range []struct {
		name string
		proc Process
	}{
		{storeName, r.store},
		{proxyName, r.proxy},
	} {
		if c.proc == nil {
			continue
		}
		select {
		case <-c.proc.Done():
			return fmt.Errorf("%s (pid %d) exited early: %v", c.name, c.proc.Pid(), exitReason(c.proc.ExitErr()))
		default:
		}
	}
	return nil
}

func exitReason(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

func (r *Runner) storeReady(ctx context.Context) error {
	return r.observer.Ping(ctx)
}

func (r *Runner) proxyReady(addr string) readinessCheck {
	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("proxy at %s not accepting connections: %w", addr, err)
		}
		return conn.Close()
	}
}
