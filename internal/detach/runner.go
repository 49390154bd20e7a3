// Package detach runs fire-and-forget side effects (payment cancellation,
// notification sends) on their own goroutines. Errors are routed to the
// logger and a failure counter only; callers never join these tasks, so a
// failure here can never block or roll back a committed state transition.
package detach

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultTaskTimeout = 30 * time.Second

type Runner struct {
	log      *zap.Logger
	timeout  time.Duration
	failures prometheus.Counter
	wg       sync.WaitGroup
}

func NewRunner(log *zap.Logger, timeout time.Duration, failures prometheus.Counter) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Runner{
		log:      log.With(zap.String("component", "detach")),
		timeout:  timeout,
		failures: failures,
	}
}

// Go executes fn on a fresh goroutine with its own timeout context, detached
// from the caller's request lifetime.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.fail(name, zap.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.fail(name, zap.Error(err))
		}
	}()
}

func (r *Runner) fail(name string, field zap.Field) {
	r.log.Warn("detached task failed", zap.String("task", name), field)
	if r.failures != nil {
		r.failures.Inc()
	}
}

// Drain waits for in-flight tasks during shutdown, up to the context
// deadline.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
