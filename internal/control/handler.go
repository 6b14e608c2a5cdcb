package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/weatherdash/offline-proxy/internal/cachestore"
	"github.com/weatherdash/offline-proxy/internal/fault"
	"github.com/weatherdash/offline-proxy/internal/logger"
	"github.com/weatherdash/offline-proxy/internal/notify"
	"github.com/weatherdash/offline-proxy/internal/syncqueue"
)

// Activator forces a waiting version to take over.
type Activator interface {
	SkipWaiting(ctx context.Context) error
}

// Handler applies control messages.
type Handler struct {
	registry  *cachestore.Registry
	activator Activator
	queue     syncqueue.Queue
	validator *validator.Validate
}

func NewHandler(registry *cachestore.Registry, activator Activator, queue syncqueue.Queue) (*Handler, error) {
	if registry == nil {
		return nil, errors.New("cache registry is nil")
	}
	if activator == nil {
		return nil, errors.New("activator is nil")
	}
	if queue == nil {
		return nil, errors.New("sync queue is nil")
	}
	return &Handler{registry: registry, activator: activator, queue: queue, validator: validator.New()}, nil
}

// Handle applies msg. Unknown actions are logged and ignored so that dashboards and controllers
// of different versions can talk to each other.
func (h *Handler) Handle(ctx context.Context, msg Message) (Reply, error) {
	log := logger.WithComponent("control")
	reply := Reply{Action: msg.Action}

	switch msg.Action {
	case ActionSkipWaiting:
		if err := h.activator.SkipWaiting(ctx); err != nil {
			return reply, err
		}

	case ActionClearCache:
		n, err := h.clearAll(ctx)
		if err != nil {
			return reply, err
		}
		reply.Deleted = n
		log.Infof("cleared %d cache containers", n)

	case ActionGetCacheSize:
		size, err := h.registry.TotalSize(ctx)
		if err != nil {
			return reply, err
		}
		reply.Size = &size

	case ActionQueueRequest:
		var d syncqueue.RequestDescriptor
		if err := h.decode(msg, &d); err != nil {
			return reply, err
		}
		task, err := h.queue.Enqueue(ctx, syncqueue.NewRequestTask(d))
		if err != nil {
			return reply, err
		}
		reply.TaskID = task.ID
		log.Debugf("queued %s %s as %s", d.Method, d.URL, task.ID)

	case ActionQueueNotification:
		var n notify.Notification
		if err := h.decode(msg, &n); err != nil {
			return reply, err
		}
		task, err := h.queue.Enqueue(ctx, syncqueue.NewNotificationTask(n))
		if err != nil {
			return reply, err
		}
		reply.TaskID = task.ID

	default:
		log.Warnf("ignoring unknown control action %q", msg.Action)
		reply.Ignored = true
		return reply, nil
	}

	reply.OK = true
	return reply, nil
}

func (h *Handler) decode(msg Message, v any) error {
	if len(msg.Data) == 0 {
		return fault.InvalidMessage(msg.Action, fmt.Errorf("missing data"))
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fault.InvalidMessage(msg.Action, err)
	}
	if err := h.validator.Struct(v); err != nil {
		return fault.InvalidMessage(msg.Action, err)
	}
	return nil
}

// clearAll deletes every container, current or not.
func (h *Handler) clearAll(ctx context.Context) (int, error) {
	names, err := h.registry.Names(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, name := range names {
		ok, err := h.registry.Delete(ctx, name)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}
