package route

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/weatherdash/offline-proxy/internal/api/middleware"
	"github.com/weatherdash/offline-proxy/internal/app"
)

// ControlPrefix is where the controller's own endpoints live. Everything else is intercepted.
const ControlPrefix = "/_sw"

// SetupRoutes builds the main router: controller endpoints under /_sw, /health, and the
// catch-all that intercepts every other request.
func SetupRoutes(appCtx *app.App, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.HoneybadgerMiddleware(log))
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
			"version": appCtx.Registry.Version(),
		})
	})

	timeout := appCtx.Config.Server.RequestTimeout
	sw := r.Group(ControlPrefix)

	NewControlRouter(timeout, sw, appCtx)
	NewSyncRouter(timeout, sw, appCtx)
	NewStateRouter(timeout, sw, appCtx)
	NewProxyRouter(r, appCtx)

	return r
}
