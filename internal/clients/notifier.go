package clients

import (
	"context"
	"errors"

	"github.com/weatherdash/offline-proxy/internal/logger"
	"github.com/weatherdash/offline-proxy/internal/notify"
)

// HubNotifier displays notifications by posting them to every connected instance. With no
// instance connected the notification is only logged.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Show(ctx context.Context, note notify.Notification) error {
	msg := map[string]any{"type": TypeNotification, "notification": note}
	sent, err := n.hub.Broadcast(ctx, msg)
	if errors.Is(err, ErrNoClients) {
		logger.WithComponent("notify").Infof("notification %q shown with no connected clients", note.Title)
		return nil
	}
	if sent > 0 {
		if err != nil {
			logger.WithComponent("notify").Warnf("notification %q partially delivered: %v", note.Title, err)
		}
		return nil
	}
	return err
}
