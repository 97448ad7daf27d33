package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedGauges struct{ conns, lobbies, games int }

func (g fixedGauges) Connections() int { return g.conns }
func (g fixedGauges) Lobbies() int     { return g.lobbies }
func (g fixedGauges) Games() int       { return g.games }

func TestRecordCommand(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCommand("login", StatusOK, time.Millisecond)
	m.RecordCommand("login", StatusOK, time.Millisecond)
	m.RecordCommand("login", StatusError, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CommandsTotal.WithLabelValues("login", StatusOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CommandsTotal.WithLabelValues("login", StatusError)))
}

func TestRecordRoundEnd(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRoundEnd("red", false)
	m.RecordRoundEnd("draw", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RoundsEnded.WithLabelValues("red")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GamesFinished))
}

func TestRecordDroppedIgnoresZero(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordDropped(0)
	m.RecordDropped(3)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.DroppedMessages))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordCommand("login", StatusOK, time.Millisecond)
	m.RecordConnection()
	m.RecordDropped(1)
	m.RecordRoundEnd("red", true)
	m.RecordOTPIssued("register")
}

func TestHandlerExposesGauges(t *testing.T) {
	registry := NewRegistry()
	m := New(registry)
	RegisterGauges(registry, fixedGauges{conns: 4, lobbies: 2, games: 1})
	m.RecordConnection()

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "thefall_connections 4")
	assert.Contains(t, string(body), "thefall_lobbies 2")
	assert.Contains(t, string(body), "thefall_games 1")
	assert.Contains(t, string(body), "thefall_connections_total 1")
}
