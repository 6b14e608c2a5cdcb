package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/weatherdash/offline-proxy/internal/clients"
	"github.com/weatherdash/offline-proxy/internal/control"
	"github.com/weatherdash/offline-proxy/internal/fault"
	"github.com/weatherdash/offline-proxy/internal/logger"
	"nhooyr.io/websocket"
)

// Caller delivers a control message and waits for its reply.
type Caller interface {
	Call(ctx context.Context, msg control.Message) (control.Reply, error)
}

// ClientRegistry tracks connected dashboard instances.
type ClientRegistry interface {
	Add(c clients.Client)
	Remove(id string)
}

type ControlController struct {
	channel Caller
	hub     ClientRegistry
	// baseCtx bounds websocket sessions; they end when the application shuts down.
	baseCtx context.Context
}

func NewControlController(baseCtx context.Context, channel Caller, hub ClientRegistry) *ControlController {
	return &ControlController{channel: channel, hub: hub, baseCtx: baseCtx}
}

// PostMessage handles one control message sent over plain HTTP.
func (cc *ControlController) PostMessage(c *gin.Context) {
	var msg control.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message: " + err.Error()})
		return
	}

	reply, err := cc.channel.Call(c.Request.Context(), msg)
	if err != nil {
		reply.Action = msg.Action
		reply.Error = err.Error()
		c.JSON(messageStatus(err), reply)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// Channel upgrades to a websocket. The connection becomes a controllable client; every text
// frame it sends is a control message answered with a REPLY frame.
func (cc *ControlController) Channel(c *gin.Context) {
	log := logger.WithComponent("control_controller")

	conn, err := websocket.Accept(newUpgradeWriter(c.Writer), c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		log.Warnf("websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	pageURL := c.Query("url")
	if pageURL == "" {
		pageURL = c.Request.Referer()
	}
	client := clients.NewConnClient(ulid.Make().String(), pageURL, conn)
	cc.hub.Add(client)
	defer cc.hub.Remove(client.ID())
	log.Infof("client %s connected (%s)", client.ID(), pageURL)

	ctx, cancel := context.WithCancel(cc.baseCtx)
	defer cancel()
	go func() {
		select {
		case <-c.Request.Context().Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Infof("client %s disconnected", client.ID())
			} else if !errors.Is(err, context.Canceled) {
				log.Debugf("client %s read: %v", client.ID(), err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg control.Message
		var reply control.Reply
		if err := json.Unmarshal(data, &msg); err != nil {
			reply = control.Reply{Error: "invalid message: " + err.Error()}
		} else if reply, err = cc.channel.Call(ctx, msg); err != nil {
			reply.Action = msg.Action
			reply.Error = err.Error()
		}

		if err := client.Post(ctx, gin.H{"type": clients.TypeReply, "reply": reply}); err != nil {
			log.Debugf("client %s write: %v", client.ID(), err)
			return
		}
	}
}

func messageStatus(err error) int {
	switch {
	case errors.Is(err, control.ErrChannelClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return fault.StatusOf(err)
	}
}
