package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weatherdash/offline-proxy/internal/cachestore"
	"github.com/weatherdash/offline-proxy/internal/config"
	"github.com/weatherdash/offline-proxy/internal/control"
	"github.com/weatherdash/offline-proxy/internal/fetch"
	"github.com/weatherdash/offline-proxy/internal/lifecycle"
	"github.com/weatherdash/offline-proxy/internal/repository"
	"github.com/weatherdash/offline-proxy/internal/syncqueue"
)

// mockRepository implements repository.Repository for testing
type mockRepository struct {
	manifest       repository.Manifest
	loadErr        error
	watcherErr     error
	watcherStarted atomic.Bool
}

func (m *mockRepository) Load() (*repository.Manifest, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	c := m.manifest
	return &c, nil
}

func (m *mockRepository) Save(mf *repository.Manifest) error {
	m.manifest = *mf
	return nil
}

func (m *mockRepository) StartWatcher(ctx context.Context, sink repository.ManifestSink) error {
	if m.watcherErr != nil {
		return m.watcherErr
	}
	m.watcherStarted.Store(true)
	return nil
}

// closingQueue records Close on top of the memory queue.
type closingQueue struct {
	*syncqueue.MemoryQueue
	closed atomic.Bool
}

func (q *closingQueue) Close() error {
	q.closed.Store(true)
	return q.MemoryQueue.Close()
}

func okFetcher() fetch.Fetcher {
	return fetch.FetcherFunc(func(_ context.Context, req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/html"}},
			Body:       io.NopCloser(strings.NewReader("<html>" + req.URL.Path + "</html>")),
			Request:    req,
		}, nil
	})
}

func controlPing() control.Message {
	return control.Message{Action: control.ActionGetCacheSize}
}

func testConfig() *config.Config {
	return &config.Config{
		Origin: config.OriginConfig{APIPrefix: "/api/"},
		Cache: config.CacheConfig{
			Version:     "v0",
			APIMaxAge:   30 * time.Minute,
			SkipWaiting: true,
		},
		Server: config.ServerConfig{RequestTimeout: time.Second},
	}
}

func testManifest() repository.Manifest {
	return repository.Manifest{
		Version: "v1",
		Shell:   "/index.html",
		Offline: "/offline.html",
		Assets:  []string{"/static/js/bundle.js"},
	}
}

func newTestApp(t *testing.T) (*App, *mockRepository, *closingQueue) {
	t.Helper()
	repo := &mockRepository{manifest: testManifest()}
	queue := &closingQueue{MemoryQueue: syncqueue.NewMemoryQueue()}
	app, err := New(testConfig(), repo, cachestore.NewMemoryBackend(0), queue, okFetcher())
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	return app, repo, queue
}

func TestNew_Success(t *testing.T) {
	app, repo, _ := newTestApp(t)

	if app.Repo != repo {
		t.Error("repo not set correctly")
	}
	if app.Registry == nil || app.Engine == nil || app.Lifecycle == nil {
		t.Fatal("core components should be wired")
	}
	if app.Dispatcher == nil || app.Channel == nil || app.Scheduler == nil {
		t.Fatal("event components should be wired")
	}
	if app.Registry.Version() != "v0" {
		t.Errorf("expected boot version v0, got %q", app.Registry.Version())
	}
	if app.Tracker.Endpoint() != "/api/weather/current" {
		t.Errorf("unexpected tracker endpoint %q", app.Tracker.Endpoint())
	}
	if app.BaseCtx == nil {
		t.Error("BaseCtx should not be nil")
	}
	if app.Cancel == nil {
		t.Error("Cancel should not be nil")
	}
}

func TestNew_NilDependencies(t *testing.T) {
	cfg := testConfig()
	repo := &mockRepository{manifest: testManifest()}
	backend := cachestore.NewMemoryBackend(0)
	queue := syncqueue.NewMemoryQueue()
	fetcher := okFetcher()

	tests := []struct {
		name    string
		build   func() (*App, error)
		wantErr string
	}{
		{"nil config", func() (*App, error) { return New(nil, repo, backend, queue, fetcher) }, "config is nil"},
		{"nil repo", func() (*App, error) { return New(cfg, nil, backend, queue, fetcher) }, "repo is nil"},
		{"nil backend", func() (*App, error) { return New(cfg, repo, nil, queue, fetcher) }, "cache backend is nil"},
		{"nil queue", func() (*App, error) { return New(cfg, repo, backend, nil, fetcher) }, "sync queue is nil"},
		{"nil fetcher", func() (*App, error) { return New(cfg, repo, backend, queue, nil) }, "fetcher is nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, err := tt.build()
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("expected error %q, got %v", tt.wantErr, err)
			}
			if app != nil {
				t.Error("expected nil app on error")
			}
		})
	}
}

func TestNew_ManifestLoadFailureUsesDefaults(t *testing.T) {
	repo := &mockRepository{loadErr: errors.New("no such file")}
	app, err := New(testConfig(), repo, cachestore.NewMemoryBackend(0), syncqueue.NewMemoryQueue(), okFetcher())
	require.NoError(t, err)
	defer app.Shutdown()

	assert.NotNil(t, app.Engine)
}

func TestApp_StartWatchers_InstallsManifest(t *testing.T) {
	app, repo, _ := newTestApp(t)

	require.NoError(t, app.StartWatchers())
	assert.True(t, repo.watcherStarted.Load())

	require.Eventually(t, func() bool {
		return app.Lifecycle.Status().State == lifecycle.StateActive
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "v1", app.Registry.Version())
	shell, err := app.Registry.Open(context.Background(), cachestore.PurposeShell)
	require.NoError(t, err)
	keys, err := shell.Keys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestApp_StartWatchers_WatcherError(t *testing.T) {
	app, repo, _ := newTestApp(t)
	repo.watcherErr = errors.New("inotify limit")

	err := app.StartWatchers()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest watcher")
}

func TestApp_Shutdown(t *testing.T) {
	app, _, queue := newTestApp(t)

	select {
	case <-app.BaseCtx.Done():
		t.Error("context should not be done before shutdown")
	default:
	}

	app.Shutdown()

	select {
	case <-app.BaseCtx.Done():
	default:
		t.Error("context should be done after shutdown")
	}
	if !queue.closed.Load() {
		t.Error("expected sync queue to be closed")
	}

	// A second call is a no-op.
	app.Shutdown()
}

func TestApp_Shutdown_Nil(t *testing.T) {
	var app *App
	app.Shutdown()
}

func TestApp_Shutdown_NilCancel(t *testing.T) {
	app := &App{
		Cancel: nil,
	}
	app.Shutdown()
}

func TestApp_Shutdown_StopsControlChannel(t *testing.T) {
	app, _, _ := newTestApp(t)
	require.NoError(t, app.StartWatchers())

	app.Shutdown()

	_, err := app.Channel.Call(context.Background(), controlPing())
	assert.Error(t, err)
}
