package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weatherdash/offline-proxy/internal/fault"
)

func newUpstreams(t *testing.T) (static, api *httptest.Server) {
	t.Helper()
	static = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "static")
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "api")
		if r.URL.Path == "/api/weather/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, r.URL.RequestURI())
	}))
	t.Cleanup(static.Close)
	t.Cleanup(api.Close)
	return static, api
}

func TestNewHTTPFetcher_InvalidOrigin(t *testing.T) {
	_, err := NewHTTPFetcher(nil, "not a url", "http://api.local", "/api/", DefaultBreakerSettings())
	assert.Error(t, err)

	_, err = NewHTTPFetcher(nil, "http://static.local", "/relative", "/api/", DefaultBreakerSettings())
	assert.Error(t, err)
}

func TestHTTPFetcher_RoutesByPrefix(t *testing.T) {
	static, api := newUpstreams(t)
	f, err := NewHTTPFetcher(nil, static.URL, api.URL, "/api/", DefaultBreakerSettings())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/static/js/main.js", nil)
	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "static", resp.Header.Get("X-Upstream"))
	assert.Equal(t, "/static/js/main.js", string(body))

	req = httptest.NewRequest(http.MethodGet, "/api/weather/current?lat=1&lon=2", nil)
	resp, err = f.Fetch(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "api", resp.Header.Get("X-Upstream"))
	assert.Equal(t, "/api/weather/current?lat=1&lon=2", string(body))
}

func TestHTTPFetcher_AbsoluteURLFetchedAsIs(t *testing.T) {
	static, api := newUpstreams(t)
	f, err := NewHTTPFetcher(nil, "http://static.invalid", "http://api.invalid", "/api/", DefaultBreakerSettings())
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, api.URL+"/fonts/roboto.woff2", nil)
	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "api", resp.Header.Get("X-Upstream"))
	_ = static
}

func TestHTTPFetcher_ServerErrorIsAResponse(t *testing.T) {
	static, api := newUpstreams(t)
	f, err := NewHTTPFetcher(nil, static.URL, api.URL, "/api/", DefaultBreakerSettings())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/weather/broken", nil)
	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, IsOK(resp))
}

func TestHTTPFetcher_ConnectionFailureIsNetworkFault(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	f, err := NewHTTPFetcher(nil, deadURL, deadURL, "/api/", DefaultBreakerSettings())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	_, err = f.Fetch(context.Background(), req)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindNetwork))
}

func TestHTTPFetcher_OpenCircuitIsNetworkFault(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	settings := BreakerSettings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, ConsecutiveFailures: 2}
	f, err := NewHTTPFetcher(nil, upstream.URL, upstream.URL, "/api/", settings)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := f.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/api/weather/current", nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	_, err = f.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/api/weather/current", nil))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindNetwork))
	assert.Equal(t, int32(2), calls.Load(), "open circuit must short-circuit the upstream")
}

func TestHTTPFetcher_Target(t *testing.T) {
	f, err := NewHTTPFetcher(nil, "http://static.local/app/", "https://gw.local", "/api/", DefaultBreakerSettings())
	require.NoError(t, err)

	u, _ := url.Parse("/index.html#top")
	assert.Equal(t, "http://static.local/app/index.html", f.Target(u).String())

	u, _ = url.Parse("/api/weather/uv?lat=1")
	assert.Equal(t, "https://gw.local/api/weather/uv?lat=1", f.Target(u).String())
}

func TestHTTPFetcher_StripsHopHeaders(t *testing.T) {
	seenCh := make(chan http.Header, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCh <- r.Header.Clone()
	}))
	defer upstream.Close()

	f, err := NewHTTPFetcher(nil, upstream.URL, upstream.URL, "/api/", DefaultBreakerSettings())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Proxy-Authorization", "secret")
	req.Header.Set("X-Requested-With", "dashboard")
	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	seen := <-seenCh
	assert.Empty(t, seen.Get("Proxy-Authorization"))
	assert.Equal(t, "dashboard", seen.Get("X-Requested-With"))
}

func TestFetcherFunc(t *testing.T) {
	var f Fetcher = FetcherFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody}, nil
	})
	resp, err := f.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.True(t, IsOK(resp))
	assert.False(t, IsOK(nil))
}

func TestNewHTTPFetcher_RejectsClientTimeout(t *testing.T) {
	_, err := NewHTTPFetcher(&http.Client{Timeout: time.Second}, "http://static.local", "http://api.local", "/api/", DefaultBreakerSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}
