package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxCommandSize = 4096

	// sendBufferSize bounds the per-subscriber backlog. When it fills,
	// the oldest buffered event is discarded so publishers never block.
	sendBufferSize = 256
)

// Client is one websocket subscriber.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string

	send chan []byte

	once sync.Once
	done chan struct{}
}

func newClient(h *Hub, conn *websocket.Conn, remote string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		remote: remote,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// closeOnce releases the write pump. The underlying conn is closed by
// whichever pump exits first.
func (c *Client) closeOnce() {
	c.once.Do(func() { close(c.done) })
}

// enqueue places a message on the client's send buffer without ever
// blocking the caller. On overflow the oldest buffered message is dropped.
func (c *Client) enqueue(msg []byte) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		select {
		case c.send <- msg:
			return
		default:
		}

		select {
		case <-c.send:
			c.hub.logger.Debug("subscriber buffer full, dropped oldest event",
				zap.String("remote", c.remote))
		default:
		}
	}
}

// sendEvent marshals and enqueues a single event for this client only.
func (c *Client) sendEvent(eventType string, data any) {
	msg, err := json.Marshal(types.Event{Type: eventType, Data: data})
	if err != nil {
		c.hub.logger.Error("event marshal failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	c.enqueue(msg)
}

// readPump consumes subscriber commands until the connection dies, then
// deregisters the client.
func (c *Client) readPump() {
	defer func() {
		// The hub may already have shut down; don't wait on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("subscriber read error",
					zap.String("remote", c.remote), zap.Error(err))
			}
			return
		}
		c.hub.handleCommand(context.Background(), c, raw)
	}
}

// writePump drains the send buffer onto the wire and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
