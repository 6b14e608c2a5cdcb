package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weatherdash/offline-proxy/internal/lifecycle"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// StatusSource reports the lifecycle state.
type StatusSource interface {
	Status() lifecycle.Status
}

// ContainerLister lists cache containers and their total size.
type ContainerLister interface {
	Names(ctx context.Context) ([]string, error)
	TotalSize(ctx context.Context) (int64, error)
}

// ClientCounter reports connected instances and the version controlling them.
type ClientCounter interface {
	Len() int
	Controller() string
}

type StateController struct {
	lifecycle  StatusSource
	containers ContainerLister
	clients    ClientCounter
	opened     func() []string
}

// NewStateController builds the state endpoint. opened may be nil.
func NewStateController(lc StatusSource, containers ContainerLister, clients ClientCounter, opened func() []string) *StateController {
	return &StateController{lifecycle: lc, containers: containers, clients: clients, opened: opened}
}

// State returns lifecycle, cache and client information.
func (sc *StateController) State(c *gin.Context) {
	ctx := c.Request.Context()

	names, err := sc.containers.Names(ctx)
	if err != nil {
		logger.WithComponent("state_controller").Errorf("list containers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list caches"})
		return
	}
	size, err := sc.containers.TotalSize(ctx)
	if err != nil {
		logger.WithComponent("state_controller").Errorf("cache size: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute cache size"})
		return
	}

	body := gin.H{
		"lifecycle":  sc.lifecycle.Status(),
		"caches":     names,
		"cacheSize":  size,
		"clients":    sc.clients.Len(),
		"controller": sc.clients.Controller(),
	}
	if sc.opened != nil {
		body["openedWindows"] = sc.opened()
	}
	c.JSON(http.StatusOK, body)
}
