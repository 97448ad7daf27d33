// Package handler holds the plain HTTP endpoints served next to the websocket.
package handler

import (
	"net/http"
	"time"

	"github.com/thefall/sessionserver/internal/api/response"
	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/metrics"
)

// HealthHandler reports liveness and the size of the live registries
type HealthHandler struct {
	gauges  metrics.Gauges
	clock   clock.Clock
	started time.Time
}

// NewHealthHandler creates a HealthHandler; uptime counts from now
func NewHealthHandler(gauges metrics.Gauges, clk clock.Clock) *HealthHandler {
	return &HealthHandler{gauges: gauges, clock: clk, started: clk.Now()}
}

// Get handles GET /health
func (h *HealthHandler) Get(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{
		Status:        "ok",
		Connections:   h.gauges.Connections(),
		Lobbies:       h.gauges.Lobbies(),
		Games:         h.gauges.Games(),
		UptimeSeconds: h.clock.Now().Sub(h.started).Seconds(),
	})
}
