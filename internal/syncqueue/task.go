// Package syncqueue holds work queued for the next background sync: requests to replay and
// notifications to show.
package syncqueue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/weatherdash/offline-proxy/internal/notify"
)

type Kind string

const (
	KindRequest      Kind = "request"
	KindNotification Kind = "notification"
)

var ErrTaskNotFound = errors.New("sync task not found")

// RequestDescriptor is a mutation captured while offline.
type RequestDescriptor struct {
	Method  string              `json:"method" validate:"required"`
	URL     string              `json:"url" validate:"required"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    string              `json:"body,omitempty"`
}

// NewRequest rebuilds the original request.
func (d RequestDescriptor) NewRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if d.Body != "" {
		body = strings.NewReader(d.Body)
	}
	method := d.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), d.URL, body)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s %s: %w", d.Method, d.URL, err)
	}
	for k, vs := range d.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Task is one pending sync task. Exactly one of Request and Notification is set.
type Task struct {
	ID           string                `json:"id"`
	Kind         Kind                  `json:"kind"`
	Request      *RequestDescriptor    `json:"request,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
}

func NewRequestTask(d RequestDescriptor) Task {
	return Task{Kind: KindRequest, Request: &d}
}

func NewNotificationTask(n notify.Notification) Task {
	return Task{Kind: KindNotification, Notification: &n}
}

// Queue is the persistent pending-task queue. Drain returns the tasks of one kind in enqueue
// order without removing them; callers Remove each task once it has been handled.
type Queue interface {
	Enqueue(ctx context.Context, t Task) (Task, error)
	Drain(ctx context.Context, kind Kind) ([]Task, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID for a task created at ts. IDs sort in creation order.
func NewID(ts time.Time) (string, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(ts), entropy)
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	return id.String(), nil
}

func prepare(t Task, now time.Time) (Task, error) {
	switch t.Kind {
	case KindRequest:
		if t.Request == nil {
			return Task{}, fmt.Errorf("request task without descriptor")
		}
	case KindNotification:
		if t.Notification == nil {
			return Task{}, fmt.Errorf("notification task without descriptor")
		}
	default:
		return Task{}, fmt.Errorf("unknown task kind %q", t.Kind)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now.UTC()
	}
	if t.ID == "" {
		id, err := NewID(t.CreatedAt)
		if err != nil {
			return Task{}, err
		}
		t.ID = id
	}
	return t, nil
}
