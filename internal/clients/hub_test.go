package clients

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weatherdash/offline-proxy/internal/notify"
)

type fakeClient struct {
	id  string
	url string
	err error

	mu      sync.Mutex
	posted  []any
	focused int
}

func (c *fakeClient) ID() string  { return c.id }
func (c *fakeClient) URL() string { return c.url }

func (c *fakeClient) Post(_ context.Context, msg any) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posted = append(c.posted, msg)
	return nil
}

func (c *fakeClient) Focus(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused++
	return nil
}

func TestHub_AddListRemove(t *testing.T) {
	h := NewHub()
	a := &fakeClient{id: "a", url: "/"}
	b := &fakeClient{id: "b", url: "/forecast"}
	h.Add(a)
	h.Add(b)
	assert.Equal(t, 2, h.Len())

	ids := []string{}
	for _, c := range h.List() {
		ids = append(ids, c.ID())
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	h.Remove("a")
	require.Len(t, h.List(), 1)
	assert.Equal(t, "b", h.List()[0].ID())
}

func TestHub_Claim(t *testing.T) {
	h := NewHub()
	ok := &fakeClient{id: "ok"}
	broken := &fakeClient{id: "broken", err: errors.New("closed")}
	h.Add(ok)
	h.Add(broken)

	claimed := h.Claim(context.Background(), "v2")
	assert.Equal(t, 1, claimed)
	assert.Equal(t, "v2", h.Controller())
	assert.True(t, h.Controlled("ok"))
	require.Len(t, ok.posted, 1)
	assert.Equal(t, map[string]any{"type": TypeControllerChanged, "version": "v2"}, ok.posted[0])
}

func TestHub_Broadcast(t *testing.T) {
	h := NewHub()
	_, err := h.Broadcast(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoClients)

	a := &fakeClient{id: "a"}
	h.Add(a)
	h.Add(&fakeClient{id: "b", err: errors.New("gone")})
	sent, err := h.Broadcast(context.Background(), "hello")
	assert.Equal(t, 1, sent)
	assert.Error(t, err)
	assert.Equal(t, []any{"hello"}, a.posted)
}

func TestRecordingOpener(t *testing.T) {
	o := &RecordingOpener{}
	require.NoError(t, o.Open(context.Background(), "/alerts/1"))
	require.NoError(t, o.Open(context.Background(), "/"))
	assert.Equal(t, []string{"/alerts/1", "/"}, o.Opened())
}

func TestHubNotifier(t *testing.T) {
	h := NewHub()
	n := NewHubNotifier(h)
	require.NoError(t, n.Show(context.Background(), notify.DefaultTemplate()), "no clients is not a failure")

	h.Add(&fakeClient{id: "dead", err: errors.New("closed")})
	assert.Error(t, n.Show(context.Background(), notify.DefaultTemplate()))

	live := &fakeClient{id: "live"}
	h.Add(live)
	require.NoError(t, n.Show(context.Background(), notify.DefaultTemplate()))
	require.Len(t, live.posted, 1)
	msg := live.posted[0].(map[string]any)
	assert.Equal(t, TypeNotification, msg["type"])
}
