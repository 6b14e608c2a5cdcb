package middleware

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestHoneybadgerMiddleware_DisabledPassesThrough(t *testing.T) {
	t.Setenv("HONEYBADGER_API_KEY", "")
	log := logrus.New()
	log.SetOutput(io.Discard)

	r := gin.New()
	r.Use(HoneybadgerMiddleware(log))
	r.GET("/fail", func(c *gin.Context) {
		c.String(http.StatusBadGateway, "upstream down")
	})

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
	if w.Body.String() != "upstream down" {
		t.Errorf("expected body to be untouched, got '%s'", w.Body.String())
	}
}

func TestHoneybadgerMiddleware_DisabledDoesNotSwallowPanics(t *testing.T) {
	t.Setenv("HONEYBADGER_API_KEY", "")
	log := logrus.New()
	log.SetOutput(io.Discard)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(HoneybadgerMiddleware(log))
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected gin.Recovery to answer 500, got %d", w.Code)
	}
}

func TestIncidentFor(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		status  int
		report  bool
		tags    honeybadger.Tags
		withReq bool
	}{
		{"offline answer", "/api/weather/current", http.StatusOK, false, nil, false},
		{"not found", "/_sw/sync/nightly", http.StatusNotFound, false, nil, false},
		{"upstream down on static miss", "/static/js/app.js", http.StatusBadGateway, true, honeybadger.Tags{"proxy", "http", "upstream", "5XX"}, true},
		{"storage full", "/static/img/logo.png", http.StatusInsufficientStorage, true, honeybadger.Tags{"proxy", "http", "storage", "5XX"}, true},
		{"control timeout", "/_sw/message", http.StatusGatewayTimeout, true, honeybadger.Tags{"control", "http", "timeout", "5XX"}, true},
		{"invalid control message", "/_sw/message", http.StatusBadRequest, true, honeybadger.Tags{"control", "http", "4XX"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc, ok := incidentFor(http.MethodGet, tt.path, tt.status)

			assert.Equal(t, tt.report, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.tags, inc.tags)
			assert.Equal(t, tt.withReq, inc.withRequest)
			assert.Contains(t, inc.title, tt.path)
		})
	}
}

func TestHoneybadgerMiddleware_EnabledReportsFailures(t *testing.T) {
	t.Setenv("HONEYBADGER_API_KEY", "test-key")
	log := logrus.New()
	log.SetOutput(io.Discard)

	var notices []string
	orig := notify
	notify = func(err interface{}, extra ...interface{}) (string, error) {
		notices = append(notices, fmt.Sprint(err))
		return "", nil
	}
	defer func() { notify = orig }()

	r := gin.New()
	r.Use(HoneybadgerMiddleware(log))
	r.GET("/api/weather/current", func(c *gin.Context) {
		c.Header("X-SW-Cache", "fallback")
		c.String(http.StatusOK, "{}")
	})
	r.GET("/static/js/app.js", func(c *gin.Context) {
		c.String(http.StatusBadGateway, "upstream down")
	})

	for _, path := range []string{"/api/weather/current", "/static/js/app.js"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []string{"Error: HTTP 502: GET /static/js/app.js"}, notices)
}
