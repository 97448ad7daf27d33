// Package metrics defines the server's prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcome labels
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusRateLimited = "rate_limited"
)

// Gauges reports the current size of the live registries
type Gauges interface {
	Connections() int
	Lobbies() int
	Games() int
}

// Metrics holds the server's counters and histograms
type Metrics struct {
	CommandsTotal    *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	ConnectionsTotal prometheus.Counter
	DroppedMessages  prometheus.Counter
	RoundsEnded      *prometheus.CounterVec
	GamesFinished    prometheus.Counter
	OTPIssued        *prometheus.CounterVec
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thefall_commands_total",
				Help: "Total number of protocol commands by name and status",
			},
			[]string{"command", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "thefall_command_duration_seconds",
				Help:    "Protocol command handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thefall_connections_total",
			Help: "Total number of accepted connections",
		}),
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thefall_dropped_messages_total",
			Help: "Messages dropped because a connection's send buffer was full",
		}),
		RoundsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thefall_rounds_ended_total",
				Help: "Total number of rounds ended by winner",
			},
			[]string{"winner"},
		),
		GamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thefall_games_finished_total",
			Help: "Total number of games played to completion",
		}),
		OTPIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thefall_otp_issued_total",
				Help: "Total number of one-time codes issued by kind",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.ConnectionsTotal,
		m.DroppedMessages,
		m.RoundsEnded,
		m.GamesFinished,
		m.OTPIssued,
	)
	return m
}

// RegisterGauges exposes the live registry sizes
func RegisterGauges(reg prometheus.Registerer, g Gauges) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "thefall_connections",
			Help: "Currently open connections",
		}, func() float64 { return float64(g.Connections()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "thefall_lobbies",
			Help: "Currently active lobbies",
		}, func() float64 { return float64(g.Lobbies()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "thefall_games",
			Help: "Currently running games",
		}, func() float64 { return float64(g.Games()) }),
	)
}

// NewRegistry returns a registry carrying the go and process collectors
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// Handler serves the registry in the prometheus exposition format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordCommand counts one handled command. A nil receiver records nothing.
func (m *Metrics) RecordCommand(command, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// RecordConnection counts one accepted connection
func (m *Metrics) RecordConnection() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
}

// RecordDropped counts messages that could not be queued
func (m *Metrics) RecordDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedMessages.Add(float64(n))
}

// RecordRoundEnd counts one ended round and, when finished, one completed game
func (m *Metrics) RecordRoundEnd(winner string, finished bool) {
	if m == nil {
		return
	}
	m.RoundsEnded.WithLabelValues(winner).Inc()
	if finished {
		m.GamesFinished.Inc()
	}
}

// RecordOTPIssued counts one issued code
func (m *Metrics) RecordOTPIssued(kind string) {
	if m == nil {
		return
	}
	m.OTPIssued.WithLabelValues(kind).Inc()
}
