package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	appctx "github.com/weatherdash/offline-proxy/internal/app"
	"github.com/weatherdash/offline-proxy/internal/logger"

	"github.com/enrichman/httpgrace"
)

// newProxyServer serves handler with the configured timeouts. Request contexts derive from the
// app's base context, and connected dashboards are told to reconnect before the listener drains.
func newProxyServer(app *appctx.App, handler http.Handler) *httpgrace.Server {
	cfg := app.Config.Server
	out := logger.Logger.Writer()

	return httpgrace.NewServer(handler,
		httpgrace.WithTimeout(cfg.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slog.New(slog.NewTextHandler(out, nil))),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("shutting down proxy, %d dashboard(s) connected", app.Hub.Len())
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(cfg.ReadTimeout),
			httpgrace.WithWriteTimeout(cfg.WriteTimeout),
			httpgrace.WithIdleTimeout(cfg.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(net.Listener) context.Context { return app.BaseCtx }
				srv.ErrorLog = log.New(out, fmt.Sprintf("[%s] ", "proxy"), log.LstdFlags)
			},
		),
	)
}
