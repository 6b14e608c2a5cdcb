package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue keeps tasks in process memory.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
	now   func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, t Task) (Task, error) {
	t, err := prepare(t, q.now())
	if err != nil {
		return Task{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return t, nil
}

func (q *MemoryQueue) Drain(_ context.Context, kind Kind) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Task
	for _, t := range q.tasks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out, nil
}

func (q *MemoryQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.tasks {
		if t.ID == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// Len returns the number of pending tasks of every kind.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *MemoryQueue) Close() error { return nil }
