package dispatcher

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// locationParams are the query parameters that identify a location on the current-conditions
// endpoint.
var locationParams = []string{"lat", "lon", "q", "city", "units"}

// LocationTracker remembers the location of the most recent current-conditions request so the
// periodic refresh knows what to fetch.
type LocationTracker struct {
	endpoint string

	mu   sync.RWMutex
	last url.Values
}

// NewLocationTracker tracks requests to apiPrefix + "weather/current".
func NewLocationTracker(apiPrefix string) *LocationTracker {
	if !strings.HasSuffix(apiPrefix, "/") {
		apiPrefix += "/"
	}
	return &LocationTracker{endpoint: apiPrefix + "weather/current"}
}

// Endpoint returns the current-conditions path.
func (t *LocationTracker) Endpoint() string {
	return t.endpoint
}

// Observe records the location of r when it targets the current-conditions endpoint.
func (t *LocationTracker) Observe(r *http.Request) {
	if r.Method != http.MethodGet || strings.TrimSuffix(r.URL.Path, "/") != t.endpoint {
		return
	}
	q := r.URL.Query()
	loc := url.Values{}
	for _, p := range locationParams {
		if v := q.Get(p); v != "" {
			loc.Set(p, v)
		}
	}
	hasCoords := loc.Get("lat") != "" && loc.Get("lon") != ""
	if !hasCoords && loc.Get("q") == "" && loc.Get("city") == "" {
		return
	}
	t.mu.Lock()
	t.last = loc
	t.mu.Unlock()
}

// Last returns the query identifying the last known location.
func (t *LocationTracker) Last() (url.Values, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return nil, false
	}
	out := url.Values{}
	for k, v := range t.last {
		out[k] = append([]string(nil), v...)
	}
	return out, true
}
