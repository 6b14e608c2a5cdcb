package clients

import (
	"context"
	"encoding/json"
	"sync"

	"nhooyr.io/websocket"
)

// ConnClient is a dashboard instance connected over a websocket.
type ConnClient struct {
	id   string
	url  string
	conn *websocket.Conn

	writeMu sync.Mutex
}

func NewConnClient(id, url string, conn *websocket.Conn) *ConnClient {
	return &ConnClient{id: id, url: url, conn: conn}
}

func (c *ConnClient) ID() string  { return c.id }
func (c *ConnClient) URL() string { return c.url }

// Post writes msg as a JSON text frame. Writes are serialized per connection.
func (c *ConnClient) Post(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *ConnClient) Focus(ctx context.Context) error {
	return c.Post(ctx, map[string]string{"type": TypeFocus})
}
