package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// TaskRunner runs deferred work (OTP challenge delivery, request
// execution) decoupled from the inbound request/response cycle. It is
// explicit task submission rather than bare fire-and-forget so shutdown
// can drain in-flight work.
type TaskRunner struct {
	wg      sync.WaitGroup
	timeout time.Duration
}

func NewTaskRunner(timeout time.Duration) *TaskRunner {
	return &TaskRunner{timeout: timeout}
}

// Go submits fn on its own goroutine with a bounded context. Callers
// must only submit after any state transition the task depends on has
// been durably committed.
func (t *TaskRunner) Go(name string, fn func(ctx context.Context) error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("[TASK] %s failed: %v", name, err)
		}
	}()
}

// Wait blocks until all submitted tasks have finished.
func (t *TaskRunner) Wait() {
	t.wg.Wait()
}
