// Package classifier assigns every intercepted request to a caching category.
package classifier

import (
	"net/http"
	"path"
	"strings"
)

type Category string

const (
	Static     Category = "STATIC"
	API        Category = "API"
	Navigation Category = "NAVIGATION"
)

// DefaultAPIPrefix is the path prefix reserved for the weather API gateway.
const DefaultAPIPrefix = "/api/"

// Classifier is safe for concurrent use; it holds no mutable state.
type Classifier struct {
	apiPrefix string
}

func New(apiPrefix string) Classifier {
	if apiPrefix == "" {
		apiPrefix = DefaultAPIPrefix
	}
	if !strings.HasPrefix(apiPrefix, "/") {
		apiPrefix = "/" + apiPrefix
	}
	return Classifier{apiPrefix: apiPrefix}
}

func (c Classifier) APIPrefix() string {
	return c.apiPrefix
}

// Classify is total: anything that is neither an API path nor a top-level page load is STATIC.
func (c Classifier) Classify(urlPath string, navigate bool) Category {
	if strings.HasPrefix(urlPath, c.apiPrefix) {
		return API
	}
	if navigate {
		return Navigation
	}
	return Static
}

// FromRequest classifies an intercepted request.
func (c Classifier) FromRequest(r *http.Request) Category {
	return c.Classify(r.URL.Path, IsNavigation(r))
}

// IsNavigation reports whether r is a top-level page load.
func IsNavigation(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("Sec-Fetch-Mode"), "navigate") {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Navigation-Mode"), "navigate")
}

var extDestinations = map[string]string{
	".png":   "image",
	".jpg":   "image",
	".jpeg":  "image",
	".gif":   "image",
	".webp":  "image",
	".svg":   "image",
	".ico":   "image",
	".avif":  "image",
	".js":    "script",
	".mjs":   "script",
	".css":   "style",
	".woff":  "font",
	".woff2": "font",
	".ttf":   "font",
	".otf":   "font",
	".html":  "document",
	".json":  "manifest",
}

// Destination returns the request destination. Sec-Fetch-Dest wins; otherwise it is inferred
// from the path extension, and "" means unknown.
func Destination(r *http.Request) string {
	if d := r.Header.Get("Sec-Fetch-Dest"); d != "" && d != "empty" {
		return strings.ToLower(d)
	}
	return destinationFromPath(r.URL.Path)
}

func destinationFromPath(p string) string {
	return extDestinations[strings.ToLower(path.Ext(p))]
}
