package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// RequestTimeout bounds the request context by d, so upstream fetches and control calls made on
// behalf of the request give up together. Handlers must honor ctx.Done(). When the deadline
// passed and nothing was written, the client gets a 504.
//
// d <= 0 disables the bound. Websocket upgrades are never bounded.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 || isWebsocketUpgrade(c.Request) {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if c.Writer.Written() || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		logger.WithComponent("timeout").Warnf("%s %s gave up after %v", c.Request.Method, c.Request.URL.Path, d)
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{
			"error":   "request timeout",
			"timeout": d.String(),
		})
	}
}

func isWebsocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, token := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}
