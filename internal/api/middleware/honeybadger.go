package middleware

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/sirupsen/logrus"
)

// notify is replaced in tests.
var notify = honeybadger.Notify

// incident describes a response worth reporting.
type incident struct {
	title       string
	tags        honeybadger.Tags
	withRequest bool
}

// incidentFor decides whether a finished request is reported. Offline answers (fallback
// payloads, placeholders, cached copies) are 200s and never reach Honeybadger; 404s are noise.
func incidentFor(method, path string, status int) (incident, bool) {
	if status < http.StatusBadRequest || status == http.StatusNotFound {
		return incident{}, false
	}

	surface := "proxy"
	if strings.HasPrefix(path, "/_sw/") {
		surface = "control"
	}

	tags := honeybadger.Tags{surface, "http"}
	switch status {
	case http.StatusBadGateway:
		tags = append(tags, "upstream")
	case http.StatusInsufficientStorage:
		tags = append(tags, "storage")
	case http.StatusGatewayTimeout:
		tags = append(tags, "timeout")
	}

	if status >= http.StatusInternalServerError {
		return incident{
			title:       fmt.Sprintf("Error: HTTP %d: %s %s", status, method, path),
			tags:        append(tags, "5XX"),
			withRequest: true,
		}, true
	}
	return incident{
		title: fmt.Sprintf("Warning: HTTP %d: %s %s", status, method, path),
		tags:  append(tags, "4XX"),
	}, true
}

// HoneybadgerMiddleware reports failed responses and panics to Honeybadger when
// HONEYBADGER_API_KEY is set. Panics are re-raised for gin.Recovery to answer.
func HoneybadgerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	apiKey := os.Getenv("HONEYBADGER_API_KEY")
	if apiKey == "" {
		logger.Info("Honeybadger is not active. To enable error reporting, set the HONEYBADGER_API_KEY environment variable.")
		return func(c *gin.Context) { c.Next() }
	}

	honeybadger.Configure(honeybadger.Configuration{
		APIKey: apiKey,
		Env:    os.Getenv("WEATHERDASH_ENV"),
	})
	logger.Info("Honeybadger error reporting is enabled.")

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				_, _ = notify(fmt.Sprintf("Panic: %s %s", c.Request.Method, c.Request.URL.Path),
					c.Request, honeybadger.Context{"stack": string(debug.Stack())}, honeybadger.Tags{"panic", "http"})
				logger.Error("Recovered from panic, notified Honeybadger: ", rec)
				panic(rec)
			}
		}()

		c.Next()

		inc, ok := incidentFor(c.Request.Method, c.Request.URL.Path, c.Writer.Status())
		if !ok {
			return
		}
		hbCtx := honeybadger.Context{
			"cache_status": c.Writer.Header().Get("X-SW-Cache"),
			"errors":       c.Errors.String(),
		}
		if inc.withRequest {
			_, _ = notify(inc.title, c.Request, hbCtx, inc.tags)
		} else {
			_, _ = notify(inc.title, hbCtx, inc.tags)
		}
		logger.Warnf("Honeybadger reported HTTP %d for %s %s", c.Writer.Status(), c.Request.Method, c.Request.URL.Path)
	}
}
