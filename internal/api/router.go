// Package api serves the websocket endpoint and the operational HTTP routes.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/thefall/sessionserver/internal/api/apierr"
	"github.com/thefall/sessionserver/internal/api/handler"
	"github.com/thefall/sessionserver/internal/api/middleware"
	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/metrics"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger   *slog.Logger
	Clock    clock.Clock
	WS       http.Handler
	Gauges   metrics.Gauges
	Registry *prometheus.Registry // nil disables /metrics
}

// NewRouter creates the HTTP router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewNotFoundError())
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewMethodNotAllowedError())
	})

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	healthHandler := handler.NewHealthHandler(cfg.Gauges, cfg.Clock)

	// Clients connect to the root path; /ws is kept as an explicit alias
	r.Handle("/", cfg.WS).Methods(http.MethodGet)
	r.Handle("/ws", cfg.WS).Methods(http.MethodGet)

	r.HandleFunc("/health", healthHandler.Get).Methods(http.MethodGet)
	if cfg.Registry != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Registry)).Methods(http.MethodGet)
	}

	return handlers.ProxyHeaders(r)
}
