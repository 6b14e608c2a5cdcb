package route

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weatherdash/offline-proxy/internal/api/controller"
	"github.com/weatherdash/offline-proxy/internal/api/middleware"
	"github.com/weatherdash/offline-proxy/internal/app"
)

func NewSyncRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	events := group.Group("")
	// A sync replays every queued request, so it gets a longer budget than a single call.
	events.Use(middleware.RequestTimeout(4 * timeout))

	sc := controller.NewSyncController(appCtx.Dispatcher)

	events.POST("sync/:tag", sc.Sync)
	events.POST("push", sc.Push)
	events.POST("notification-click", sc.NotificationClick)
}
