package route

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weatherdash/offline-proxy/internal/api/controller"
	"github.com/weatherdash/offline-proxy/internal/api/middleware"
	"github.com/weatherdash/offline-proxy/internal/app"
)

func NewControlRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	cc := controller.NewControlController(appCtx.BaseCtx, appCtx.Channel, appCtx.Hub)

	// The websocket outlives any request timeout.
	group.GET("channel", cc.Channel)
	group.POST("message", middleware.RequestTimeout(timeout), cc.PostMessage)
}
