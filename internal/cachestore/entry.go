package cachestore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Entry is an immutable snapshot of a response. Refreshing a cached resource overwrites the
// entry; it is never mutated in place.
type Entry struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// KeyFor returns the cache key used for a request URL: the URL without its fragment.
func KeyFor(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// EntryFromResponse snapshots resp. The response body is fully read and replaced with a
// fresh reader over the same bytes so the caller can still return resp to its own client.
func EntryFromResponse(resp *http.Response) (Entry, error) {
	if resp == nil {
		return Entry{}, fmt.Errorf("snapshot: nil response")
	}
	var body []byte
	if resp.Body != nil {
		b, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return Entry{}, fmt.Errorf("snapshot: read body: %w", err)
		}
		body = b
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	ent := Entry{
		Status: resp.StatusCode,
		Header: cloneHeader(resp.Header),
		Body:   append([]byte(nil), body...),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		ent.URL = resp.Request.URL.String()
	}
	ent.Header.Del("Content-Length")
	return ent, nil
}

// Response builds a new *http.Response over a private copy of the entry. Every call returns an
// independent body.
func (e Entry) Response(req *http.Request) *http.Response {
	h := cloneHeader(e.Header)
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Date returns the parsed Date header of the stored response.
func (e Entry) Date() (time.Time, bool) {
	raw := e.Header.Get("Date")
	if raw == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone deep-copies the entry so stored snapshots never share slices with callers.
func (e Entry) Clone() Entry {
	return Entry{
		URL:    e.URL,
		Status: e.Status,
		Header: cloneHeader(e.Header),
		Body:   append([]byte(nil), e.Body...),
	}
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out[k] = vv
	}
	return out
}
