package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// frame is one outbound message queued for the write pump.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Conn is one authenticated websocket connection. The read pump handles
// inbound events in receipt order; outbound frames go through a buffered
// channel drained by the write pump, so broadcasts never block on a slow
// peer.
type Conn struct {
	id     string
	userID string
	role   models.Role
	sock   *websocket.Conn
	hub    *Hub

	send      chan frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(hub *Hub, sock *websocket.Conn, userID string, role models.Role) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		userID: userID,
		role:   role,
		sock:   sock,
		hub:    hub,
		send:   make(chan frame, hub.sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *Conn) ID() string        { return c.id }
func (c *Conn) UserID() string    { return c.userID }
func (c *Conn) Role() models.Role { return c.role }

// deliver queues a frame without blocking. If the buffer is full the
// frame is dropped; delivery is best-effort by contract.
func (c *Conn) deliver(event string, data any) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- frame{Event: event, Data: data}:
	default:
		observability.FramesDropped.Inc()
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.sock.Close()
	})
}

// readPump consumes inbound frames until the peer goes away, dispatching
// each synchronously so one connection's events keep their order. Blocks
// the caller; returns after the hub has cleaned up.
func (c *Conn) readPump(ctx context.Context) {
	defer c.hub.Disconnect(c)

	c.sock.SetReadLimit(c.hub.readLimit)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read error", "user_id", c.userID, "error", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
			c.deliver(EventError, errorPayload("malformed frame"))
			continue
		}
		c.hub.Dispatch(ctx, c, env)
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings. Exits when the connection closes.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case f := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
