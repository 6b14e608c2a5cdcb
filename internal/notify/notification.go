// Package notify models user-facing notifications and the push payload that overrides them.
package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/weatherdash/offline-proxy/internal/logger"
)

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

type Notification struct {
	Title              string         `json:"title" validate:"required"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon,omitempty"`
	Badge              string         `json:"badge,omitempty"`
	Tag                string         `json:"tag,omitempty"`
	RequireInteraction bool           `json:"requireInteraction"`
	Actions            []Action       `json:"actions,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// URL returns data.url, or "" when the notification carries none.
func (n Notification) URL() string {
	if u, ok := n.Data["url"].(string); ok {
		return u
	}
	return ""
}

// DefaultTemplate is the notification shown when a push carries no usable payload.
func DefaultTemplate() Notification {
	return Notification{
		Title:              "Weather Update",
		Body:               "New weather information is available",
		Icon:               "/icons/icon-192x192.png",
		Badge:              "/icons/badge-72x72.png",
		Tag:                "weather-update",
		RequireInteraction: false,
		Actions: []Action{
			{Action: "view", Title: "View Details", Icon: "/icons/view.png"},
			{Action: "dismiss", Title: "Dismiss", Icon: "/icons/dismiss.png"},
		},
		Data: map[string]any{"url": "/"},
	}
}

// pushPayload marks which template fields a push payload sets.
type pushPayload struct {
	Title              *string         `json:"title"`
	Body               *string         `json:"body"`
	Icon               *string         `json:"icon"`
	Badge              *string         `json:"badge"`
	Tag                *string         `json:"tag"`
	RequireInteraction *bool           `json:"requireInteraction"`
	Actions            *[]Action       `json:"actions"`
	Data               *map[string]any `json:"data"`
}

// FromPush overlays a push payload on the default template one top-level field at a time: a
// field the payload sets replaces the default wholesale (actions and data included), an
// omitted field keeps its default. A payload that is not a JSON object yields the default.
func FromPush(payload []byte) Notification {
	n := DefaultTemplate()
	if len(strings.TrimSpace(string(payload))) == 0 {
		return n
	}

	var p pushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		logger.WithComponent("notify").Warnf("malformed push payload, using default template: %v", err)
		return n
	}

	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Body != nil {
		n.Body = *p.Body
	}
	if p.Icon != nil {
		n.Icon = *p.Icon
	}
	if p.Badge != nil {
		n.Badge = *p.Badge
	}
	if p.Tag != nil {
		n.Tag = *p.Tag
	}
	if p.RequireInteraction != nil {
		n.RequireInteraction = *p.RequireInteraction
	}
	if p.Actions != nil {
		n.Actions = *p.Actions
	}
	if p.Data != nil {
		n.Data = *p.Data
	}
	return n
}

// Notifier displays a notification to the user.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Show(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
