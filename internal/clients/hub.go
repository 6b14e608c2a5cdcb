// Package clients tracks the dashboard instances connected to the controller.
package clients

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/weatherdash/offline-proxy/internal/logger"
)

// Message types posted to connected instances.
const (
	TypeControllerChanged   = "CONTROLLER_CHANGED"
	TypeNotification        = "NOTIFICATION"
	TypeNotificationClicked = "NOTIFICATION_CLICKED"
	TypeFocus               = "FOCUS"
	TypeReply               = "REPLY"
)

// Client is one open dashboard instance.
type Client interface {
	ID() string
	// URL is the page the instance reported when it connected.
	URL() string
	Post(ctx context.Context, msg any) error
	Focus(ctx context.Context) error
}

// WindowOpener opens a new dashboard instance at url.
type WindowOpener interface {
	Open(ctx context.Context, url string) error
}

var ErrNoClients = errors.New("no connected clients")

// Hub is the set of connected clients plus the controller version that serves them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]entry
	controller string
}

type entry struct {
	client      Client
	connectedAt time.Time
	controlled  bool
}

func NewHub() *Hub {
	return &Hub{clients: map[string]entry{}}
}

func (h *Hub) Add(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = entry{client: c, connectedAt: time.Now()}
	logger.WithComponent("clients").Debugf("client %s connected (%s)", c.ID(), c.URL())
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
	logger.WithComponent("clients").Debugf("client %s disconnected", id)
}

// List returns the connected clients, oldest connection first.
func (h *Hub) List() []Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entries := make([]entry, 0, len(h.clients))
	for _, e := range h.clients {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].connectedAt.Equal(entries[j].connectedAt) {
			return entries[i].client.ID() < entries[j].client.ID()
		}
		return entries[i].connectedAt.Before(entries[j].connectedAt)
	})
	out := make([]Client, len(entries))
	for i, e := range entries {
		out[i] = e.client
	}
	return out
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Controller returns the version that last claimed the clients.
func (h *Hub) Controller() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.controller
}

// Controlled reports whether client id has been claimed by the current controller.
func (h *Hub) Controlled(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id].controlled
}

// Claim takes control of every connected client for version. Clients are told with a
// CONTROLLER_CHANGED message; a client that cannot be reached is logged and skipped.
func (h *Hub) Claim(ctx context.Context, version string) int {
	h.mu.Lock()
	h.controller = version
	for id, e := range h.clients {
		e.controlled = true
		h.clients[id] = e
	}
	h.mu.Unlock()

	claimed := 0
	for _, c := range h.List() {
		msg := map[string]any{"type": TypeControllerChanged, "version": version}
		if err := c.Post(ctx, msg); err != nil {
			logger.WithComponent("clients").Warnf("cannot notify client %s of controller change: %v", c.ID(), err)
			continue
		}
		claimed++
	}
	return claimed
}

// Broadcast posts msg to every client and returns how many received it.
func (h *Hub) Broadcast(ctx context.Context, msg any) (int, error) {
	list := h.List()
	if len(list) == 0 {
		return 0, ErrNoClients
	}
	var errs []error
	sent := 0
	for _, c := range list {
		if err := c.Post(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("client %s: %w", c.ID(), err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
