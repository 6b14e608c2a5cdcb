package controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weatherdash/offline-proxy/internal/dispatcher"
	"github.com/weatherdash/offline-proxy/internal/logger"
	"github.com/weatherdash/offline-proxy/internal/notify"
)

// EventHandler reacts to sync, push and notification click events.
type EventHandler interface {
	HandleSync(ctx context.Context, tag string) (dispatcher.Report, error)
	HandlePush(ctx context.Context, payload []byte) (notify.Notification, error)
	HandleNotificationClick(ctx context.Context, click dispatcher.Click) error
}

// maxPushPayload bounds push bodies; real push services cap payloads at 4KB.
const maxPushPayload = 64 << 10

type SyncController struct {
	events EventHandler
}

func NewSyncController(events EventHandler) *SyncController {
	return &SyncController{events: events}
}

// Sync fires the sync event named by :tag.
func (sc *SyncController) Sync(c *gin.Context) {
	tag := c.Param("tag")
	report, err := sc.events.HandleSync(c.Request.Context(), tag)
	switch {
	case errors.Is(err, dispatcher.ErrUnknownTag):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "tags": dispatcher.Tags})
		return
	case errors.Is(err, dispatcher.ErrNoLocation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.WithComponent("sync_controller").Errorf("sync %s failed: %v", tag, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Push delivers a push payload. The body is passed through as-is; malformed JSON falls back to
// the default notification.
func (sc *SyncController) Push(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPushPayload))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read payload"})
		return
	}

	n, err := sc.events.HandlePush(c.Request.Context(), payload)
	if err != nil {
		logger.WithComponent("sync_controller").Errorf("push failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, n)
}

// NotificationClick reports a click on a displayed notification.
func (sc *SyncController) NotificationClick(c *gin.Context) {
	var click dispatcher.Click
	if err := c.ShouldBindJSON(&click); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid click: " + err.Error()})
		return
	}

	if err := sc.events.HandleNotificationClick(c.Request.Context(), click); err != nil {
		logger.WithComponent("sync_controller").Errorf("notification click failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
