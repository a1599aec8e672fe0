package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/util"

	"go.uber.org/zap"
)

// Task is a unit of best-effort work
type Task func(ctx context.Context) error

// Dispatcher runs best-effort tasks in the background. A task's failure is
// logged and counted but never reported to whoever dispatched it.
type Dispatcher struct {
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher that gives each task timeout to finish
func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

// Dispatch starts task on its own goroutine and returns immediately. Tasks
// dispatched after Stop are dropped.
func (d *Dispatcher) Dispatch(name string, task Task) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.logger.Warn("Dispatcher stopped, dropping task", zap.String("task", name))
		util.BestEffortTasksTotal.WithLabelValues(name, "dropped").Inc()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.run(name, task)
	}()
}

func (d *Dispatcher) run(name string, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return task(ctx)
	}()

	if err != nil {
		d.logger.Warn("Best-effort task failed",
			zap.String("task", name),
			zap.Error(err))
		util.BestEffortTasksTotal.WithLabelValues(name, "failed").Inc()
		return
	}
	util.BestEffortTasksTotal.WithLabelValues(name, "ok").Inc()
}

// Stop refuses new tasks and waits for running ones until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.logger.Info("Stopping task dispatcher...")

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
