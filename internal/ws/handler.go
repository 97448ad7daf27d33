package ws

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/metrics"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/services/session"
)

// Sessions is the protocol endpoint every websocket connection is attached to
type Sessions interface {
	Connect(conn session.Conn)
	HandleMessage(ctx context.Context, conn session.Conn, data []byte)
	Disconnect(ctx context.Context, conn session.Conn)
}

// Config holds websocket tunables
type Config struct {
	SendBuffer     int           // Outbound messages buffered per connection
	MaxMessageSize int64         // Largest inbound frame accepted
	WriteWait      time.Duration // Time allowed to write one message
	PongWait       time.Duration // Silence tolerated before the peer is considered gone
	PingPeriod     time.Duration // Must be less than PongWait
	AllowedOrigins []string      // Empty allows every origin
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		SendBuffer:     256,
		MaxMessageSize: 512 * 1024,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

// Handler upgrades HTTP requests to websocket connections and runs them against Sessions
type Handler struct {
	sessions Sessions
	clock    clock.Clock
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	clients  map[model.ConnID]*Client
	draining bool
	wg       sync.WaitGroup
}

// NewHandler creates a websocket Handler
func NewHandler(sessions Sessions, clk clock.Clock, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		sessions: sessions,
		clock:    clk,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With(slog.String("component", "ws")),
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[model.ConnID]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeHTTP runs one connection until it closes
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Any("error", err))
		return
	}

	client := newClient(session.NewConnID(h.clock.Now()), conn, r.RemoteAddr, h.cfg, h.metrics, h.logger)
	if !h.track(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.cfg.WriteWait))
		_ = conn.Close()
		return
	}
	defer h.untrack(client)

	h.logger.Info("connection opened",
		slog.String("conn_id", string(client.ID())),
		slog.String("remote_addr", client.RemoteAddr()))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.writePump()
	}()

	h.sessions.Connect(client)
	client.readPump(h.ctx, h.sessions)
	h.sessions.Disconnect(context.Background(), client)

	client.close()
	<-writerDone
}

// Len returns the number of open websocket connections
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every connection and waits for them to be torn down
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.cancel()
	for _, c := range clients {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, c := range clients {
			_ = c.conn.Close()
		}
		return ctx.Err()
	}
}

func (h *Handler) track(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.clients[c.ID()] = c
	h.wg.Add(1)
	return true
}

func (h *Handler) untrack(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID())
	h.mu.Unlock()
	h.wg.Done()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, origin)
}
