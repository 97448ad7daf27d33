// Package ws carries the session protocol over websocket connections.
package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thefall/sessionserver/internal/metrics"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/services/session"
)

// Client is one accepted websocket connection
type Client struct {
	id      model.ConnID
	conn    *websocket.Conn
	addr    string
	send    chan []byte
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Ensure Client implements session.Conn
var _ session.Conn = (*Client)(nil)

func newClient(id model.ConnID, conn *websocket.Conn, addr string, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		addr:    addr,
		send:    make(chan []byte, cfg.SendBuffer),
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("conn_id", string(id))),
		done:    make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() model.ConnID { return c.id }

// RemoteAddr returns the peer address
func (c *Client) RemoteAddr() string { return c.addr }

// Send queues a message for the write pump. It never blocks; a full buffer drops the message.
func (c *Client) Send(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.metrics.RecordDropped(1)
		return false
	}
}

// close stops the write pump; further sends are dropped
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// readPump feeds inbound frames to the sessions until the peer goes away or ctx ends
func (c *Client) readPump(ctx context.Context, sessions Sessions) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("websocket read failed", slog.Any("error", err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		// Any traffic counts as liveness, including application heartbeats
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		sessions.HandleMessage(ctx, c, data)
	}
}

// writePump drains the send buffer onto the socket and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still buffered before the close frame
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
