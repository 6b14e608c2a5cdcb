package control

import (
	"context"
	"errors"
)

var ErrChannelClosed = errors.New("control channel closed")

type result struct {
	reply Reply
	err   error
}

type call struct {
	ctx   context.Context
	msg   Message
	reply chan result
}

// Channel carries typed control messages to a single serving loop. Messages are applied one at
// a time in arrival order; each Call waits for its own reply.
type Channel struct {
	handler *Handler
	calls   chan call
	done    chan struct{}
}

func NewChannel(handler *Handler) *Channel {
	return &Channel{
		handler: handler,
		calls:   make(chan call),
		done:    make(chan struct{}),
	}
}

// Serve processes calls until ctx is done. It must run exactly once.
func (c *Channel) Serve(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cl := <-c.calls:
			reply, err := c.handler.Handle(cl.ctx, cl.msg)
			cl.reply <- result{reply: reply, err: err}
		}
	}
}

// Call sends msg and waits for the reply.
func (c *Channel) Call(ctx context.Context, msg Message) (Reply, error) {
	cl := call{ctx: ctx, msg: msg, reply: make(chan result, 1)}
	select {
	case c.calls <- cl:
	case <-c.done:
		return Reply{}, ErrChannelClosed
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	select {
	case r := <-cl.reply:
		return r.reply, r.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}
