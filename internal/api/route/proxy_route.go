package route

import (
	"github.com/gin-gonic/gin"
	"github.com/weatherdash/offline-proxy/internal/api/controller"
	"github.com/weatherdash/offline-proxy/internal/app"
)

// NewProxyRouter installs the intercepting catch-all. It must be registered last. Intercepted
// fetches carry no deadline; a slow asset streams for as long as the upstream needs.
func NewProxyRouter(r *gin.Engine, appCtx *app.App) {
	pc := controller.NewProxyController(appCtx.Engine, appCtx.Tracker)

	r.NoRoute(pc.Intercept)
}
