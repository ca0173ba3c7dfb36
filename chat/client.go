package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the deadline for a single outbound write.
	writeWait = 10 * time.Second
	// pongWait is how long to wait for a pong before considering the peer gone.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize caps inbound frames; chat lines are short.
	maxFrameSize = 4096
	// sendBufferSize is the per-connection outbound queue.
	sendBufferSize = 256
)

// Client adapts one websocket connection into a hub Session, running the
// usual read/write pump pair.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient wraps an upgraded connection. The id is generated here and is
// stable for the socket lifetime.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	conn.SetReadLimit(maxFrameSize)
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// ID implements Session.
func (c *Client) ID() string { return c.id }

// Send implements Session: non-blocking enqueue onto the outbound buffer.
func (c *Client) Send(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Run admits the client to the hub, starts the write pump, and reads until
// the connection drops. It returns after cleanup; the caller owns the
// goroutine (typically the HTTP handler's).
func (c *Client) Run(ctx context.Context) {
	c.hub.Connect(c)
	done := make(chan struct{})
	go c.writePump(done)

	defer func() {
		c.hub.Disconnect(c.id)
		close(done)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadEnd(err)
			return
		}
		c.hub.HandleEvent(ctx, c.id, frame)
	}
}

func (c *Client) logReadEnd(err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		slog.Debug("websocket closed", slog.String("conn", c.id), slog.String("component", "chat"))
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("inbound frame exceeded limit", slog.String("conn", c.id), slog.String("component", "chat"))
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			slog.Debug("websocket read timeout", slog.String("conn", c.id), slog.String("component", "chat"))
			return
		}
		slog.Warn("websocket read error", slog.String("conn", c.id), slog.Any("err", err), slog.String("component", "chat"))
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("websocket write error", slog.String("conn", c.id), slog.Any("err", err), slog.String("component", "chat"))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
