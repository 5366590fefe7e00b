// Package pipeline runs the product generation flows: image batch, mesh
// generation, state transitions, and the demo mock variant.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handle tracks one background task from launch to completion.
type Handle struct {
	Name    string
	started time.Time
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Done is closed when the task finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Err returns the task error, or nil if still running or succeeded.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Runner owns background generation tasks. Every task is tracked from
// launch until completion, so callers can always answer "is anything
// running" — the piece the busy-flag recovery logic depends on.
type Runner struct {
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[*Handle]struct{}
	wg    sync.WaitGroup
}

// NewRunner creates an empty runner.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{
		logger: logger.With(zap.String("component", "runner")),
		tasks:  make(map[*Handle]struct{}),
	}
}

// Go launches fn on its own goroutine and returns a handle for it. The task
// gets a background context: it outlives the HTTP request that started it.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) *Handle {
	h := &Handle{
		Name:    name,
		started: time.Now(),
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.tasks[h] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				h.mu.Lock()
				h.err = fmt.Errorf("task %s panicked: %v", name, rec)
				h.mu.Unlock()
				r.logger.Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", rec))
			}
			r.mu.Lock()
			delete(r.tasks, h)
			r.mu.Unlock()
			close(h.done)
		}()

		r.logger.Info("background task started", zap.String("task", name))
		err := fn(context.Background())
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()

		if err != nil {
			r.logger.Error("background task failed",
				zap.String("task", name),
				zap.Duration("elapsed", time.Since(h.started)),
				zap.Error(err))
		} else {
			r.logger.Info("background task finished",
				zap.String("task", name),
				zap.Duration("elapsed", time.Since(h.started)))
		}
	}()

	return h
}

// Active returns the number of live tasks.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Wait blocks until every live task finishes or the context expires.
func (r *Runner) Wait(ctx context.Context) error {
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
