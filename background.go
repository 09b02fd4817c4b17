package fitauth

import (
	"context"
	"sync"
	"time"
)

const defaultTaskTimeout = 10 * time.Second

// TaskRunner executes side effects (ledger revocation, cache invalidation)
// after the primary response is already determined. Task latency or failure
// never delays or fails the user-facing response: failures are logged and
// swallowed.
type TaskRunner struct {
	logger  Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewTaskRunner creates a runner whose tasks are bounded by the default
// timeout.
func NewTaskRunner(logger Logger) *TaskRunner {
	if logger == nil {
		logger = defLogger{}
	}
	return &TaskRunner{
		logger:  logger,
		timeout: defaultTaskTimeout,
	}
}

// Go schedules the task on its own goroutine with a detached,
// deadline-bounded context. The task must not assume the request context is
// still alive.
func (r *TaskRunner) Go(name string, task func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked", "task", name, "panic", rec)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := task(ctx); err != nil {
			r.logger.Warn("background task failed", "task", name, "error", err)
		}
	}()
}

// Close waits for in-flight tasks to finish. Call at shutdown.
func (r *TaskRunner) Close() {
	r.wg.Wait()
}
