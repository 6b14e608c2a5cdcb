package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/weatherdash/offline-proxy/internal/cachestore"
	"github.com/weatherdash/offline-proxy/internal/classifier"
	"github.com/weatherdash/offline-proxy/internal/clients"
	"github.com/weatherdash/offline-proxy/internal/config"
	"github.com/weatherdash/offline-proxy/internal/control"
	"github.com/weatherdash/offline-proxy/internal/dispatcher"
	"github.com/weatherdash/offline-proxy/internal/fetch"
	"github.com/weatherdash/offline-proxy/internal/lifecycle"
	"github.com/weatherdash/offline-proxy/internal/logger"
	"github.com/weatherdash/offline-proxy/internal/repository"
	"github.com/weatherdash/offline-proxy/internal/scheduler"
	"github.com/weatherdash/offline-proxy/internal/strategy"
	"github.com/weatherdash/offline-proxy/internal/syncqueue"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config     *config.Config
	Repo       repository.Repository
	Registry   *cachestore.Registry
	Queue      syncqueue.Queue
	Engine     *strategy.Engine
	Lifecycle  *lifecycle.Manager
	Hub        *clients.Hub
	Opener     *clients.RecordingOpener
	Tracker    *dispatcher.LocationTracker
	Dispatcher *dispatcher.Dispatcher
	Channel    *control.Channel
	Scheduler  *scheduler.SyncScheduler

	BaseCtx context.Context
	Cancel  context.CancelFunc

	tasks    *strategy.Tasks
	bg       sync.WaitGroup
	shutdown sync.Once
}

// New wires the controller around the given storage and upstream access. The app owns backend
// and queue from here on and closes them on Shutdown.
func New(cfg *config.Config, repo repository.Repository, backend cachestore.Backend, queue syncqueue.Queue, fetcher fetch.Fetcher) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if repo == nil {
		return nil, errors.New("repo is nil")
	}
	if backend == nil {
		return nil, errors.New("cache backend is nil")
	}
	if queue == nil {
		return nil, errors.New("sync queue is nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:  cfg,
		Repo:    repo,
		Queue:   queue,
		BaseCtx: ctx,
		Cancel:  cancel,
		Hub:     clients.NewHub(),
		Opener:  &clients.RecordingOpener{},
		tasks:   strategy.NewTasks(ctx),
	}
	a.Registry = cachestore.NewRegistry(backend, cfg.Cache.Version)
	a.Tracker = dispatcher.NewLocationTracker(cfg.Origin.APIPrefix)

	manifest := repository.DefaultManifest()
	if m, err := repo.Load(); err == nil {
		manifest = *m
	} else {
		logger.WithComponent("app").Warnf("cannot load manifest, using default paths: %v", err)
	}

	var err error
	a.Engine, err = strategy.New(strategy.Options{
		Registry:   a.Registry,
		Fetcher:    fetcher,
		Classifier: classifier.New(cfg.Origin.APIPrefix),
		Policy: strategy.Policy{
			APIMaxAge:    cfg.Cache.APIMaxAge,
			StaticMaxAge: cfg.Cache.StaticMaxAge,
		},
		Tasks:       a.tasks,
		ShellPath:   manifest.Shell,
		OfflinePath: manifest.Offline,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("strategy engine: %w", err)
	}

	a.Lifecycle, err = lifecycle.NewManager(lifecycle.Options{
		Registry:    a.Registry,
		Fetcher:     fetcher,
		Claimer:     a.Hub,
		SkipWaiting: cfg.Cache.SkipWaiting,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("lifecycle manager: %w", err)
	}

	handler, err := control.NewHandler(a.Registry, a.Lifecycle, queue)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("control handler: %w", err)
	}
	a.Channel = control.NewChannel(handler)

	a.Dispatcher, err = dispatcher.New(dispatcher.Options{
		Queue:    queue,
		Fetcher:  fetcher,
		Notifier: clients.NewHubNotifier(a.Hub),
		Clients:  a.Hub,
		Opener:   a.Opener,
		Tracker:  a.Tracker,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	a.Scheduler = scheduler.NewSyncScheduler(a.Dispatcher, []scheduler.Job{
		{Tag: dispatcher.TagDataSync, Interval: cfg.Sync.DataSyncInterval},
		{Tag: dispatcher.TagNotificationSync, Interval: cfg.Sync.DataSyncInterval},
		{Tag: dispatcher.TagWeatherRefresh, Interval: cfg.Sync.WeatherRefreshInterval},
	}, cfg.Server.RequestTimeout)

	return a, nil
}

// Shutdown stops background work and releases storage. It is safe to call more than once.
func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	a.Cancel()
	a.shutdown.Do(func() {
		a.bg.Wait()
		if a.tasks != nil {
			a.tasks.Close()
		}
		if a.Queue != nil {
			if err := a.Queue.Close(); err != nil {
				logger.WithComponent("app").Warnf("close sync queue: %v", err)
			}
		}
		if a.Registry != nil {
			if err := a.Registry.Backend().Close(); err != nil {
				logger.WithComponent("app").Warnf("close cache backend: %v", err)
			}
		}
	})
}

// StartWatchers starts the control channel, the manifest watcher and the periodic sync
// scheduler, then installs the current manifest in the background.
func (a *App) StartWatchers() error {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		a.Channel.Serve(a.BaseCtx)
	}()

	if err := a.Repo.StartWatcher(a.BaseCtx, a.Lifecycle); err != nil {
		return fmt.Errorf("cannot start manifest watcher: %w", err)
	}

	done, err := a.Scheduler.Start(a.BaseCtx)
	if err != nil {
		return fmt.Errorf("cannot start sync scheduler: %w", err)
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		<-done
	}()

	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		if err := a.Install(a.BaseCtx); err != nil {
			logger.WithComponent("app").Errorf("initial install failed, serving from existing caches: %v", err)
		}
	}()
	return nil
}

// Install loads the manifest from disk and installs it.
func (a *App) Install(ctx context.Context) error {
	m, err := a.Repo.Load()
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	return a.Lifecycle.Install(ctx, *m)
}
