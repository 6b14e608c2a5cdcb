// Package strategy implements the per-category fetch strategies of the offline controller.
package strategy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/weatherdash/offline-proxy/internal/cachestore"
	"github.com/weatherdash/offline-proxy/internal/classifier"
	"github.com/weatherdash/offline-proxy/internal/fetch"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// HeaderCacheStatus tells the dashboard where a response came from.
const HeaderCacheStatus = "X-SW-Cache"

const (
	StatusHit         = "hit"         // fresh cache hit, refreshed in the background
	StatusMiss        = "miss"        // not cached, fetched and stored
	StatusNetwork     = "network"     // straight from the network
	StatusRefresh     = "refresh"     // stale entry replaced by a network copy
	StatusStale       = "stale"       // stale entry served because the network failed
	StatusOffline     = "offline"     // cached copy served because the network failed
	StatusFallback    = "fallback"    // synthesized offline payload
	StatusShell       = "shell"       // app shell served for a failed navigation
	StatusPlaceholder = "placeholder" // transparent pixel for a failed image
)

// Clock returns the current time.
type Clock func() time.Time

// Policy holds the per-category maximum ages. A non-positive static max age never expires.
type Policy struct {
	APIMaxAge    time.Duration
	StaticMaxAge time.Duration
}

type Options struct {
	Registry    *cachestore.Registry
	Fetcher     fetch.Fetcher
	Classifier  classifier.Classifier
	Policy      Policy
	Clock       Clock
	Tasks       *Tasks
	ShellPath   string
	OfflinePath string
}

// Engine executes the fetch strategies. Cache writes happen as a side effect of a strategy.
type Engine struct {
	registry    *cachestore.Registry
	fetcher     fetch.Fetcher
	classifier  classifier.Classifier
	policy      Policy
	now         Clock
	tasks       *Tasks
	shellPath   string
	offlinePath string
}

func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("cache registry is nil")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Tasks == nil {
		opts.Tasks = NewTasks(context.Background())
	}
	if opts.ShellPath == "" {
		opts.ShellPath = "/index.html"
	}
	if opts.OfflinePath == "" {
		opts.OfflinePath = "/offline.html"
	}
	if opts.Classifier.APIPrefix() == "" {
		opts.Classifier = classifier.New("")
	}
	return &Engine{
		registry:    opts.Registry,
		fetcher:     opts.Fetcher,
		classifier:  opts.Classifier,
		policy:      opts.Policy,
		now:         opts.Clock,
		tasks:       opts.Tasks,
		shellPath:   opts.ShellPath,
		offlinePath: opts.OfflinePath,
	}, nil
}

func (e *Engine) Classifier() classifier.Classifier {
	return e.classifier
}

// Tasks exposes the detached task spawner so callers can await background refreshes.
func (e *Engine) Tasks() *Tasks {
	return e.tasks
}

// Intercept classifies req and runs its strategy.
func (e *Engine) Intercept(ctx context.Context, req *http.Request) (*http.Response, error) {
	return e.Handle(ctx, req, e.classifier.FromRequest(req))
}

// Handle runs the strategy for category. Only GET requests touch the caches; every other
// method goes straight to the network.
func (e *Engine) Handle(ctx context.Context, req *http.Request, category classifier.Category) (*http.Response, error) {
	if !cacheable(req) {
		return e.passThrough(ctx, req)
	}
	switch category {
	case classifier.API:
		return e.NetworkFirst(ctx, req), nil
	case classifier.Navigation:
		return e.Navigation(ctx, req)
	default:
		return e.CacheFirst(ctx, req)
	}
}

func cacheable(req *http.Request) bool {
	return req.Method == http.MethodGet
}

// passThrough forwards a request the caches never answer. Failures surface to the caller.
func (e *Engine) passThrough(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		logger.WithComponent("strategy").Debugf("%s %s not cached, network failed: %v", req.Method, req.URL.Path, err)
		return nil, err
	}
	return mark(resp, StatusNetwork), nil
}

// Fresh reports whether ent is younger than maxAge according to its stored Date header.
// Entries without a readable Date are stale.
func (e *Engine) Fresh(ent cachestore.Entry, maxAge time.Duration) bool {
	date, ok := ent.Date()
	if !ok {
		return false
	}
	return e.now().Sub(date) < maxAge
}

func (e *Engine) lookup(ctx context.Context, p cachestore.Purpose, key string) (cachestore.Entry, bool, error) {
	c, err := e.registry.Open(ctx, p)
	if err != nil {
		return cachestore.Entry{}, false, err
	}
	return c.Match(ctx, key)
}

// store snapshots resp into the current container for p and leaves resp readable.
func (e *Engine) store(ctx context.Context, p cachestore.Purpose, key string, resp *http.Response) error {
	ent, err := cachestore.EntryFromResponse(resp)
	if err != nil {
		return err
	}
	ent.Header.Del(HeaderCacheStatus)
	if _, ok := ent.Date(); !ok {
		ent.Header.Set("Date", e.now().UTC().Format(http.TimeFormat))
	}
	c, err := e.registry.Open(ctx, p)
	if err != nil {
		return err
	}
	return c.Put(ctx, key, ent)
}

func mark(resp *http.Response, status string) *http.Response {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set(HeaderCacheStatus, status)
	return resp
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
