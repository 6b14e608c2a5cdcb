package main

import (
	"fmt"
	"io"
	"net/http"

	appctx "github.com/weatherdash/offline-proxy/internal/app"
	"github.com/weatherdash/offline-proxy/internal/cachestore"
	"github.com/weatherdash/offline-proxy/internal/config"
	"github.com/weatherdash/offline-proxy/internal/fetch"
	"github.com/weatherdash/offline-proxy/internal/logger"
	"github.com/weatherdash/offline-proxy/internal/repository"
	"github.com/weatherdash/offline-proxy/internal/syncqueue"
)

// buildApp opens the manifest, the cache backend, the sync queue and the upstream fetcher, then
// hands them to the application container. Anything opened before a failure is closed again.
func buildApp(cfg *config.Config) (*appctx.App, error) {
	var opened []io.Closer
	fail := func(err error) (*appctx.App, error) {
		for i := len(opened) - 1; i >= 0; i-- {
			if cerr := opened[i].Close(); cerr != nil {
				logger.WithComponent("main").Warnf("close after failed start: %v", cerr)
			}
		}
		return nil, err
	}

	repo, err := repository.NewJSONRepository(cfg.Manifest.FilePath)
	if err != nil {
		return fail(fmt.Errorf("manifest repository: %w", err))
	}

	backend, err := cachestore.NewBackendFromConfig(cfg.Cache.Backend, cfg.Cache.Path, cfg.Cache.MaxBytes)
	if err != nil {
		return fail(fmt.Errorf("cache backend: %w", err))
	}
	opened = append(opened, backend)

	queue, err := syncqueue.NewQueueFromConfig(cfg.Sync.QueueBackend, cfg.Sync.QueuePath)
	if err != nil {
		return fail(fmt.Errorf("sync queue: %w", err))
	}
	opened = append(opened, queue)

	fetcher, err := fetch.NewHTTPFetcher(&http.Client{}, cfg.Origin.StaticURL, cfg.Origin.APIURL, cfg.Origin.APIPrefix, fetch.DefaultBreakerSettings())
	if err != nil {
		return fail(fmt.Errorf("fetcher: %w", err))
	}

	app, err := appctx.New(cfg, repo, backend, queue, fetcher)
	if err != nil {
		return fail(err)
	}
	return app, nil
}
