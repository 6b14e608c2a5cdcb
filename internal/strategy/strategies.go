package strategy

import (
	"context"
	"net/http"

	"github.com/weatherdash/offline-proxy/internal/cachestore"
	"github.com/weatherdash/offline-proxy/internal/classifier"
	"github.com/weatherdash/offline-proxy/internal/fault"
	"github.com/weatherdash/offline-proxy/internal/fetch"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// NetworkFirst serves API requests. It always resolves to a response: the network copy, a
// cached copy younger than the API max age, or a synthesized offline payload. Only GET
// responses are stored or served from the cache.
func (e *Engine) NetworkFirst(ctx context.Context, req *http.Request) *http.Response {
	log := logger.WithComponent("strategy")
	key := cachestore.KeyFor(req.URL)

	resp, err := e.fetcher.Fetch(ctx, req)
	if err == nil && fetch.IsOK(resp) {
		if cacheable(req) {
			if err := e.store(ctx, cachestore.PurposeAPI, key, resp); err != nil {
				log.Warnf("cannot cache %s: %v", key, err)
			}
		}
		return mark(resp, StatusNetwork)
	}
	if err != nil {
		log.Debugf("network-first %s: %v", key, err)
	} else {
		log.Debugf("network-first %s: upstream status %d", key, resp.StatusCode)
		discard(resp)
	}

	if cacheable(req) {
		ent, ok, lerr := e.lookup(ctx, cachestore.PurposeAPI, key)
		if lerr != nil {
			log.Warnf("cache lookup %s: %v", key, lerr)
		}
		if ok && e.Fresh(ent, e.policy.APIMaxAge) {
			return mark(ent.Response(req), StatusOffline)
		}
	}
	return fallbackResponse(req, FallbackPayload(e.classifier.APIPrefix(), req.URL.Path, e.now()))
}

// CacheFirst serves static assets. A fresh hit is returned at once and refreshed in the
// background. A hit older than the static max age is refreshed first and only served when the
// network fails. A miss goes to the network; a failed image becomes a transparent pixel.
// Requests other than GET bypass the cache entirely.
func (e *Engine) CacheFirst(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !cacheable(req) {
		return e.passThrough(ctx, req)
	}
	log := logger.WithComponent("strategy")
	key := cachestore.KeyFor(req.URL)

	ent, hit, err := e.lookup(ctx, cachestore.PurposeShell, key)
	if err != nil {
		return nil, err
	}

	if hit && (e.policy.StaticMaxAge <= 0 || e.Fresh(ent, e.policy.StaticMaxAge)) {
		e.refreshInBackground(req, key)
		return mark(ent.Response(req), StatusHit), nil
	}

	resp, ferr := e.fetcher.Fetch(ctx, req)
	if hit {
		if ferr == nil && fetch.IsOK(resp) {
			if err := e.store(ctx, cachestore.PurposeShell, key, resp); err != nil {
				discard(resp)
				return nil, err
			}
			return mark(resp, StatusRefresh), nil
		}
		discard(resp)
		log.Debugf("cache-first %s: refresh of stale entry failed, serving stale", key)
		return mark(ent.Response(req), StatusStale), nil
	}

	if ferr != nil {
		if classifier.Destination(req) == "image" {
			log.Debugf("cache-first %s: serving placeholder image: %v", key, ferr)
			return placeholderResponse(req), nil
		}
		return nil, ferr
	}
	if fetch.IsOK(resp) {
		if err := e.store(ctx, cachestore.PurposeShell, key, resp); err != nil {
			discard(resp)
			return nil, err
		}
	}
	return mark(resp, StatusMiss), nil
}

func (e *Engine) refreshInBackground(req *http.Request, key string) {
	bg := req.Clone(context.Background())
	bg.Body = http.NoBody
	e.tasks.Go("refresh "+key, func(ctx context.Context) error {
		resp, err := e.fetcher.Fetch(ctx, bg.WithContext(ctx))
		if err != nil {
			return err
		}
		defer discard(resp)
		if !fetch.IsOK(resp) {
			logger.WithComponent("strategy").Debugf("background refresh %s: upstream status %d", key, resp.StatusCode)
			return nil
		}
		return e.store(ctx, cachestore.PurposeShell, key, resp)
	})
}

// Navigation serves top-level page loads: the network response when reachable, else the
// cached app shell, else the cached offline document.
func (e *Engine) Navigation(ctx context.Context, req *http.Request) (*http.Response, error) {
	log := logger.WithComponent("strategy")

	resp, err := e.fetcher.Fetch(ctx, req)
	if err == nil {
		return mark(resp, StatusNetwork), nil
	}
	log.Debugf("navigation %s: %v", req.URL.Path, err)

	for _, candidate := range []struct {
		path   string
		status string
	}{
		{e.shellPath, StatusShell},
		{e.offlinePath, StatusOffline},
	} {
		ent, ok, lerr := e.lookup(ctx, cachestore.PurposeShell, candidate.path)
		if lerr != nil {
			return nil, lerr
		}
		if ok {
			return mark(ent.Response(req), candidate.status), nil
		}
	}
	return nil, fault.Misconfigured("navigation", "app shell and offline document are not cached")
}
