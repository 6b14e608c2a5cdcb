// Package fetch forwards intercepted requests to the upstream origins.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/weatherdash/offline-proxy/internal/fault"
	"github.com/weatherdash/offline-proxy/internal/logger"
)

// Fetcher performs a network fetch. A returned error is a network fault; any HTTP status,
// including 5xx, is a response.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

var errUpstreamStatus = errors.New("upstream server error")

// headers that only make sense on a single connection
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Accept-Encoding",
}

// BreakerSettings tunes the per-upstream circuit breakers.
type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         5,
		Interval:            1 * time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// HTTPFetcher resolves origin-relative requests against the static or API upstream and sends
// them through a circuit breaker per upstream host. Absolute URLs are fetched as-is.
type HTTPFetcher struct {
	client    *http.Client
	staticURL *url.URL
	apiURL    *url.URL
	apiPrefix string
	settings  BreakerSettings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHTTPFetcher builds a fetcher. A nil client means a plain http.Client. client must not carry
// a Timeout, since it would also cut off body reads: a hung upstream hangs until the transport
// or the caller's context gives up.
func NewHTTPFetcher(client *http.Client, staticURL, apiURL, apiPrefix string, settings BreakerSettings) (*HTTPFetcher, error) {
	if client == nil {
		client = &http.Client{}
	}
	if client.Timeout != 0 {
		return nil, fmt.Errorf("upstream client must not set a timeout (got %v)", client.Timeout)
	}
	su, err := parseOrigin("static", staticURL)
	if err != nil {
		return nil, err
	}
	au, err := parseOrigin("api", apiURL)
	if err != nil {
		return nil, err
	}
	if apiPrefix == "" {
		apiPrefix = "/api/"
	}
	return &HTTPFetcher{
		client:    client,
		staticURL: su,
		apiURL:    au,
		apiPrefix: apiPrefix,
		settings:  settings,
		breakers:  map[string]*gobreaker.CircuitBreaker{},
	}, nil
}

func parseOrigin(name, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s origin %q: %w", name, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s origin %q: scheme and host are required", name, raw)
	}
	return u, nil
}

// Target returns the upstream URL a request resolves to.
func (f *HTTPFetcher) Target(u *url.URL) *url.URL {
	if u.Host != "" {
		c := *u
		c.Fragment = ""
		return &c
	}
	base := f.staticURL
	if strings.HasPrefix(u.Path, f.apiPrefix) {
		base = f.apiURL
	}
	t := *base
	t.Path = strings.TrimSuffix(base.Path, "/") + u.Path
	t.RawPath = ""
	t.RawQuery = u.RawQuery
	t.Fragment = ""
	return &t
}

func (f *HTTPFetcher) breaker(host string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	threshold := f.settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: f.settings.MaxRequests,
		Interval:    f.settings.Interval,
		Timeout:     f.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithComponent("fetch").Warnf("circuit %s: %s -> %s", name, from, to)
		},
	})
	f.breakers[host] = cb
	return cb
}

// Fetch sends req upstream. The original request is not modified.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	target := f.Target(req.URL)
	out := req.Clone(ctx)
	out.URL = target
	out.Host = target.Host
	out.RequestURI = ""
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}

	cb := f.breaker(target.Host)
	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := f.client.Do(out)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errUpstreamStatus
		}
		return resp, nil
	})

	if errors.Is(err, errUpstreamStatus) {
		if resp, ok := result.(*http.Response); ok && resp != nil {
			return resp, nil
		}
	}
	if err != nil {
		logger.WithComponent("fetch").Debugf("%s %s failed: %v", out.Method, target, err)
		return nil, fault.Network("fetch "+target.String(), err)
	}
	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fault.Network("fetch "+target.String(), fmt.Errorf("unexpected result type from circuit breaker"))
	}
	return resp, nil
}

// IsOK reports whether resp has a 2xx status. Redirects and errors are failures for caching.
func IsOK(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300
}
