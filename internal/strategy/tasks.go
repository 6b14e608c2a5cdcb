package strategy

import (
	"context"
	"sync"

	"github.com/weatherdash/offline-proxy/internal/logger"
)

// Tasks spawns detached work such as background cache refreshes. Failures are logged and never
// reach the request that spawned the task.
type Tasks struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTasks returns a spawner whose tasks are cancelled when parent is done or Close is called.
func NewTasks(parent context.Context) *Tasks {
	ctx, cancel := context.WithCancel(parent)
	return &Tasks{ctx: ctx, cancel: cancel}
}

// Go runs fn in its own goroutine.
func (t *Tasks) Go(name string, fn func(ctx context.Context) error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithComponent("tasks").Errorf("task %s panicked: %v", name, r)
			}
		}()
		if err := fn(t.ctx); err != nil {
			logger.WithComponent("tasks").Warnf("task %s failed: %v", name, err)
			return
		}
		logger.WithComponent("tasks").Debugf("task %s done", name)
	}()
}

// Wait blocks until every spawned task has settled.
func (t *Tasks) Wait() {
	t.wg.Wait()
}

// Close abandons in-flight tasks and waits for them to return.
func (t *Tasks) Close() {
	t.cancel()
	t.wg.Wait()
}
