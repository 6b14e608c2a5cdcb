package controller

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weatherdash/offline-proxy/internal/fault"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// Interceptor answers an intercepted request from the network or the cache.
type Interceptor interface {
	Intercept(ctx context.Context, req *http.Request) (*http.Response, error)
}

// LocationObserver is told about every request so it can remember the last location queried.
type LocationObserver interface {
	Observe(r *http.Request)
}

type ProxyController struct {
	engine   Interceptor
	observer LocationObserver
}

func NewProxyController(engine Interceptor, observer LocationObserver) *ProxyController {
	return &ProxyController{engine: engine, observer: observer}
}

// Intercept is the catch-all handler: every request not addressed to the controller itself goes
// through the strategy engine.
func (pc *ProxyController) Intercept(c *gin.Context) {
	if pc.observer != nil {
		pc.observer.Observe(c.Request)
	}

	resp, err := pc.engine.Intercept(c.Request.Context(), c.Request)
	if err != nil {
		status := fault.StatusOf(err)
		logger.WithRequest("proxy_controller", c.Request).Warnf("intercept failed: %v", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	header := c.Writer.Header()
	for k, values := range resp.Header {
		for _, v := range values {
			header.Add(k, v)
		}
	}
	c.Status(resp.StatusCode)
	if c.Request.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		logger.WithRequest("proxy_controller", c.Request).Debugf("copy body: %v", err)
	}
}
