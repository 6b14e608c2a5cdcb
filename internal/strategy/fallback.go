package strategy

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type payloadFunc func(now time.Time) map[string]any

func unknownLocation() map[string]any {
	return map[string]any{"city": "Unknown", "country": "Unknown"}
}

// offline payloads per API endpoint; paths are relative to the API prefix
var endpointFallbacks = map[string]payloadFunc{
	"weather/current": func(now time.Time) map[string]any {
		return map[string]any{
			"error":       "offline",
			"message":     "Current weather unavailable offline",
			"location":    unknownLocation(),
			"temperature": nil,
			"condition":   "Unknown",
			"timestamp":   now.UTC().Format(timestampLayout),
		}
	},
	"weather/forecast": func(now time.Time) map[string]any {
		return map[string]any{
			"error":     "offline",
			"message":   "Forecast unavailable offline",
			"location":  unknownLocation(),
			"forecast":  []any{},
			"timestamp": now.UTC().Format(timestampLayout),
		}
	},
	"weather/air-quality": func(now time.Time) map[string]any {
		return map[string]any{
			"error":      "offline",
			"message":    "Air quality data unavailable offline",
			"aqi":        nil,
			"components": map[string]any{},
			"timestamp":  now.UTC().Format(timestampLayout),
		}
	},
	"weather/uv": func(now time.Time) map[string]any {
		return map[string]any{
			"error":     "offline",
			"message":   "UV index unavailable offline",
			"uvIndex":   nil,
			"timestamp": now.UTC().Format(timestampLayout),
		}
	},
	"weather/history": func(now time.Time) map[string]any {
		return map[string]any{
			"error":     "offline",
			"message":   "Weather history unavailable offline",
			"history":   []any{},
			"timestamp": now.UTC().Format(timestampLayout),
		}
	},
}

func genericFallback(time.Time) map[string]any {
	return map[string]any{"error": "offline", "message": "Data unavailable offline"}
}

// FallbackPayload returns the canned offline payload for an API path.
func FallbackPayload(apiPrefix, urlPath string, now time.Time) map[string]any {
	rel := strings.Trim(strings.TrimPrefix(urlPath, apiPrefix), "/")
	if fn, ok := endpointFallbacks[rel]; ok {
		return fn(now)
	}
	return genericFallback(now)
}

// fallbackResponse synthesizes a 200 JSON response that must not be cached by anyone.
func fallbackResponse(req *http.Request, payload map[string]any) *http.Response {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(`{"error":"offline","message":"Data unavailable offline"}`)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderCacheStatus, StatusFallback)
	return syntheticResponse(req, h, body)
}

var placeholderPNG = mustTransparentPixel()

func mustTransparentPixel() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// placeholderResponse is the 1x1 transparent image served for images that cannot be fetched.
func placeholderResponse(req *http.Request) *http.Response {
	h := http.Header{}
	h.Set("Content-Type", "image/png")
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderCacheStatus, StatusPlaceholder)
	return syntheticResponse(req, h, placeholderPNG)
}

func syntheticResponse(req *http.Request, h http.Header, body []byte) *http.Response {
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
