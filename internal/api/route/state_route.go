package route

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weatherdash/offline-proxy/internal/api/controller"
	"github.com/weatherdash/offline-proxy/internal/api/middleware"
	"github.com/weatherdash/offline-proxy/internal/app"
)

func NewStateRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	sc := controller.NewStateController(appCtx.Lifecycle, appCtx.Registry, appCtx.Hub, appCtx.Opener.Opened)

	group.GET("state", middleware.RequestTimeout(timeout), sc.State)
}
