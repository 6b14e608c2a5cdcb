package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	route "github.com/weatherdash/offline-proxy/internal/api/route"
	"github.com/weatherdash/offline-proxy/internal/config"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

func main() {
	if err := run(); err != nil {
		logger.WithComponent("main").Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	applyLogging(cfg.Misc)

	log := logger.WithComponent("main")
	log.Infof("offline proxy on :%d (static %s, api %s%s, cache %s/%s)",
		cfg.Server.Port, cfg.Origin.StaticURL, cfg.Origin.APIURL, cfg.Origin.APIPrefix, cfg.Cache.Backend, cfg.Cache.Version)

	app, err := buildApp(cfg)
	if err != nil {
		return fmt.Errorf("cannot init app: %w", err)
	}
	defer app.Shutdown()

	if err := app.StartWatchers(); err != nil {
		return fmt.Errorf("cannot start watchers: %w", err)
	}

	gin.SetMode(cfg.Misc.GinMode)
	gin.DefaultWriter = logger.Logger.Writer()
	gin.DefaultErrorWriter = logger.Logger.Writer()

	srv := newProxyServer(app, route.SetupRoutes(app, logger.Logger))
	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func applyLogging(misc config.MiscConfig) {
	log := logger.WithComponent("main")
	level, err := logger.SetLevel(misc.LogLevel)
	if err != nil {
		log.Warnf("invalid log level '%s', using 'info': %v", misc.LogLevel, err)
	}
	if err := logger.SetFormat(misc.LogFormat); err != nil {
		log.Warnf("%v, keeping text output", err)
	}
	log.Debugf("log level set to: %s", level.String())
}
