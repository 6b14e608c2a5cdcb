package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/weatherdash/offline-proxy/internal/control"
	"github.com/weatherdash/offline-proxy/internal/dispatcher"
	"github.com/weatherdash/offline-proxy/internal/fault"
	"github.com/weatherdash/offline-proxy/internal/lifecycle"
	"github.com/weatherdash/offline-proxy/internal/notify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type interceptorFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f interceptorFunc) Intercept(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

type recordingObserver struct{ paths []string }

func (o *recordingObserver) Observe(r *http.Request) { o.paths = append(o.paths, r.URL.RequestURI()) }

func TestProxyController_CopiesResponse(t *testing.T) {
	obs := &recordingObserver{}
	pc := NewProxyController(interceptorFunc(func(_ context.Context, req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header: http.Header{
				"Content-Type": []string{"application/json"},
				"X-Sw-Cache":   []string{"network"},
			},
			Body: io.NopCloser(strings.NewReader(`{"temp":3}`)),
		}, nil
	}), obs)

	r := gin.New()
	r.NoRoute(pc.Intercept)

	req := httptest.NewRequest(http.MethodGet, "/api/weather/current?city=Bergen", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"temp":3}`, w.Body.String())
	assert.Equal(t, "network", w.Header().Get("X-SW-Cache"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, []string{"/api/weather/current?city=Bergen"}, obs.paths)
}

func TestProxyController_HeadHasNoBody(t *testing.T) {
	pc := NewProxyController(interceptorFunc(func(_ context.Context, req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(strings.NewReader("body"))}, nil
	}), nil)

	r := gin.New()
	r.NoRoute(pc.Intercept)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/index.html", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestProxyController_MapsFaults(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"network", fault.Network("fetch", errors.New("refused")), http.StatusBadGateway},
		{"misconfigured", fault.Misconfigured("navigation", "no shell cached"), http.StatusServiceUnavailable},
		{"storage", fault.Storage("put", errors.New("disk full")), http.StatusInsufficientStorage},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := NewProxyController(interceptorFunc(func(context.Context, *http.Request) (*http.Response, error) {
				return nil, tt.err
			}), nil)
			r := gin.New()
			r.NoRoute(pc.Intercept)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app.js", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

type MockCaller struct {
	mock.Mock
}

func (m *MockCaller) Call(ctx context.Context, msg control.Message) (control.Reply, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(control.Reply), args.Error(1)
}

func TestControlController_PostMessage(t *testing.T) {
	size := int64(42)
	caller := new(MockCaller)
	caller.On("Call", mock.Anything, mock.MatchedBy(func(m control.Message) bool {
		return m.Action == control.ActionGetCacheSize
	})).Return(control.Reply{Action: control.ActionGetCacheSize, OK: true, Size: &size}, nil)

	cc := NewControlController(context.Background(), caller, nil)
	r := gin.New()
	r.POST("/_sw/message", cc.PostMessage)

	req := httptest.NewRequest(http.MethodPost, "/_sw/message", strings.NewReader(`{"action":"getCacheSize"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var reply control.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	require.NotNil(t, reply.Size)
	assert.Equal(t, int64(42), *reply.Size)
	caller.AssertExpectations(t)
}

func TestControlController_PostMessage_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid payload", fault.InvalidMessage("queueRequest", errors.New("url required")), http.StatusBadRequest},
		{"channel closed", control.ErrChannelClosed, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := new(MockCaller)
			caller.On("Call", mock.Anything, mock.Anything).Return(control.Reply{}, tt.err)

			cc := NewControlController(context.Background(), caller, nil)
			r := gin.New()
			r.POST("/_sw/message", cc.PostMessage)

			req := httptest.NewRequest(http.MethodPost, "/_sw/message", strings.NewReader(`{"action":"queueRequest"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			var reply control.Reply
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
			assert.Equal(t, "queueRequest", reply.Action)
			assert.NotEmpty(t, reply.Error)
		})
	}
}

func TestControlController_PostMessage_MalformedJSON(t *testing.T) {
	caller := new(MockCaller)
	cc := NewControlController(context.Background(), caller, nil)
	r := gin.New()
	r.POST("/_sw/message", cc.PostMessage)

	req := httptest.NewRequest(http.MethodPost, "/_sw/message", strings.NewReader(`{"action":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	caller.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)
}

type fakeEvents struct {
	syncErr  error
	pushed   []byte
	clicked  []dispatcher.Click
	clickErr error
}

func (f *fakeEvents) HandleSync(_ context.Context, tag string) (dispatcher.Report, error) {
	return dispatcher.Report{Tag: tag, Processed: 2}, f.syncErr
}

func (f *fakeEvents) HandlePush(_ context.Context, payload []byte) (notify.Notification, error) {
	f.pushed = payload
	return notify.FromPush(payload), nil
}

func (f *fakeEvents) HandleNotificationClick(_ context.Context, click dispatcher.Click) error {
	f.clicked = append(f.clicked, click)
	return f.clickErr
}

func newSyncRouter(events EventHandler) *gin.Engine {
	sc := NewSyncController(events)
	r := gin.New()
	r.POST("/_sw/sync/:tag", sc.Sync)
	r.POST("/_sw/push", sc.Push)
	r.POST("/_sw/notification-click", sc.NotificationClick)
	return r
}

func TestSyncController_Sync(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"unknown tag", dispatcher.ErrUnknownTag, http.StatusNotFound},
		{"no location", dispatcher.ErrNoLocation, http.StatusConflict},
		{"failure", errors.New("queue unavailable"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSyncRouter(&fakeEvents{syncErr: tt.err})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/_sw/sync/weather-data-sync", nil))

			assert.Equal(t, tt.status, w.Code)
			if tt.err == nil {
				assert.Contains(t, w.Body.String(), `"processed":2`)
			}
		})
	}
}

func TestSyncController_PushMalformedPayloadUsesDefault(t *testing.T) {
	events := &fakeEvents{}
	r := newSyncRouter(events)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/_sw/push", strings.NewReader("not json")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("not json"), events.pushed)
	assert.Contains(t, w.Body.String(), notify.DefaultTemplate().Title)
}

func TestSyncController_NotificationClick(t *testing.T) {
	events := &fakeEvents{}
	r := newSyncRouter(events)

	req := httptest.NewRequest(http.MethodPost, "/_sw/notification-click", strings.NewReader(`{"action":"view","data":{"url":"/"}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, events.clicked, 1)
	assert.Equal(t, "view", events.clicked[0].Action)
}

type fakeState struct {
	names   []string
	size    int64
	listErr error
}

func (f fakeState) Status() lifecycle.Status {
	return lifecycle.Status{State: lifecycle.StateActive, ActiveVersion: "v2"}
}
func (f fakeState) Names(context.Context) ([]string, error) { return f.names, f.listErr }
func (f fakeState) TotalSize(context.Context) (int64, error) { return f.size, nil }
func (f fakeState) Len() int { return 3 }
func (f fakeState) Controller() string { return "v2" }

func TestStateController_State(t *testing.T) {
	st := fakeState{names: []string{"shell-v2", "api-data-v2"}, size: 1024}
	sc := NewStateController(st, st, st, func() []string { return []string{"/forecast"} })
	r := gin.New()
	r.GET("/_sw/state", sc.State)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/_sw/state", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Lifecycle     lifecycle.Status `json:"lifecycle"`
		Caches        []string         `json:"caches"`
		CacheSize     int64            `json:"cacheSize"`
		Clients       int              `json:"clients"`
		Controller    string           `json:"controller"`
		OpenedWindows []string         `json:"openedWindows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, lifecycle.StateActive, body.Lifecycle.State)
	assert.Equal(t, []string{"shell-v2", "api-data-v2"}, body.Caches)
	assert.Equal(t, int64(1024), body.CacheSize)
	assert.Equal(t, 3, body.Clients)
	assert.Equal(t, "v2", body.Controller)
	assert.Equal(t, []string{"/forecast"}, body.OpenedWindows)
}

func TestStateController_StorageError(t *testing.T) {
	st := fakeState{listErr: errors.New("leveldb closed")}
	sc := NewStateController(st, st, st, nil)
	r := gin.New()
	r.GET("/_sw/state", sc.State)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/_sw/state", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
