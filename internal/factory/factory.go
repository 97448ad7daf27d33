// Package factory wires the server's components together.
package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thefall/sessionserver/internal/api"
	"github.com/thefall/sessionserver/internal/config"
	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/dependencies/random"
	"github.com/thefall/sessionserver/internal/metrics"
	"github.com/thefall/sessionserver/internal/protocol"
	"github.com/thefall/sessionserver/internal/services/auth"
	"github.com/thefall/sessionserver/internal/services/friends"
	"github.com/thefall/sessionserver/internal/services/game"
	"github.com/thefall/sessionserver/internal/services/lobby"
	"github.com/thefall/sessionserver/internal/services/mail"
	"github.com/thefall/sessionserver/internal/services/otp"
	"github.com/thefall/sessionserver/internal/services/ratelimit"
	"github.com/thefall/sessionserver/internal/services/session"
	"github.com/thefall/sessionserver/internal/storage"
	"github.com/thefall/sessionserver/internal/storage/memory"
	redisstorage "github.com/thefall/sessionserver/internal/storage/redis"
	sqlstorage "github.com/thefall/sessionserver/internal/storage/sql"
	"github.com/thefall/sessionserver/internal/worker"
	"github.com/thefall/sessionserver/internal/ws"
)

// Background job intervals
const (
	SweepCachesInterval    = 5 * time.Second
	SweepRoundsInterval    = time.Second
	FinishNotifierInterval = 20 * time.Second
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Mailer mail.Sender

	// Services
	Registry *session.Registry
	Limiter  *ratelimit.Limiter
	Codes    *otp.Cache
	Auth     *auth.Service
	Friends  *friends.Service
	Lobbies  *lobby.Controller
	Games    *game.Controller

	// Protocol and transport
	Router     *protocol.Router
	WS         *ws.Handler
	Handler    http.Handler
	Workers    *worker.Runner
	Metrics    *metrics.Metrics
	Prometheus *prometheus.Registry
}

// Config holds configuration for the application factory
type Config struct {
	// Server is the loaded server configuration
	Server config.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
}

// dependencies are the pieces New and NewTestApp choose differently
type dependencies struct {
	store   storage.Storage
	clock   clock.Clock
	random  random.Random
	codes   otp.CodeSource
	mailer  mail.Sender
	authCfg auth.Config
	wsCfg   ws.Config
	logger  *slog.Logger
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := OpenStorage(cfg.Server)
	if err != nil {
		return nil, err
	}

	codes, err := otp.NewHOTPSource()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create code source: %w", err)
	}

	wsCfg := ws.DefaultConfig()
	wsCfg.AllowedOrigins = cfg.Server.AllowedOrigins

	return newWithDependencies(dependencies{
		store:   store,
		clock:   clock.New(),
		random:  random.New(),
		codes:   codes,
		mailer:  newMailer(cfg.Server, logger),
		authCfg: auth.DefaultConfig(),
		wsCfg:   wsCfg,
		logger:  logger,
	}), nil
}

// OpenStorage connects to the configured backend
func OpenStorage(cfg config.Config) (storage.Storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StorageSQL:
		store, err := sqlstorage.Open(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		store, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.New("invalid storage: must be 'memory', 'sql' or 'redis'")
	}
}

// newMailer sends through SMTP when credentials are configured and logs otherwise
func newMailer(cfg config.Config, logger *slog.Logger) mail.Sender {
	mailCfg := mail.DefaultConfig()
	mailCfg.Host = cfg.SMTPHost
	mailCfg.Port = cfg.SMTPPort
	mailCfg.Username = cfg.SMTPUsername
	mailCfg.Password = cfg.SMTPPassword
	mailCfg.From = cfg.SMTPFrom
	if !mailCfg.Enabled() {
		logger.Warn("smtp credentials missing, codes will be logged instead of mailed")
		return mail.NewLogSender(logger)
	}
	return mail.NewSMTPSender(mailCfg, logger)
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(deps dependencies) *App {
	logger := deps.logger
	promRegistry := metrics.NewRegistry()
	m := metrics.New(promRegistry)

	registry := session.NewRegistry(logger)
	limiter := ratelimit.New(deps.clock, ratelimit.DefaultConfig(), logger)
	codes := otp.NewCache(deps.codes, deps.clock, otp.DefaultConfig(), logger)
	authService := auth.New(deps.store, codes, deps.mailer, deps.clock, deps.random, deps.authCfg, logger)
	friendsService := friends.New(deps.store, logger)
	lobbies := lobby.NewController(deps.clock, deps.random, lobby.DefaultConfig(), logger)
	games := game.NewController(deps.store, deps.clock, game.DefaultConfig(), logger)

	router := protocol.NewRouter(protocol.Deps{
		Registry: registry,
		Limiter:  limiter,
		Codes:    codes,
		Auth:     authService,
		Friends:  friendsService,
		Lobbies:  lobbies,
		Games:    games,
		Storage:  deps.store,
		Clock:    deps.clock,
		Metrics:  m,
		Logger:   logger,
	})
	metrics.RegisterGauges(promRegistry, router)

	wsHandler := ws.NewHandler(router, deps.clock, deps.wsCfg, m, logger)
	handler := api.NewRouter(api.RouterConfig{
		Logger:   logger,
		Clock:    deps.clock,
		WS:       wsHandler,
		Gauges:   router,
		Registry: promRegistry,
	})

	workers := worker.New(logger,
		worker.Job{Name: "sweep_caches", Interval: SweepCachesInterval, Run: router.SweepCaches},
		worker.Job{Name: "sweep_rounds", Interval: SweepRoundsInterval, Run: router.SweepRounds},
		worker.Job{Name: "notify_finished_games", Interval: FinishNotifierInterval, Run: router.NotifyFinishedGames},
	)

	return &App{
		Storage:    deps.store,
		Clock:      deps.clock,
		Random:     deps.random,
		Mailer:     deps.mailer,
		Registry:   registry,
		Limiter:    limiter,
		Codes:      codes,
		Auth:       authService,
		Friends:    friendsService,
		Lobbies:    lobbies,
		Games:      games,
		Router:     router,
		WS:         wsHandler,
		Handler:    handler,
		Workers:    workers,
		Metrics:    m,
		Prometheus: promRegistry,
	}
}

// Close stops background work and releases the store. The websocket handler
// is drained separately by the HTTP server.
func (a *App) Close(ctx context.Context) error {
	a.Workers.Stop()
	a.Auth.Close()
	if err := a.WS.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		_ = a.Storage.Close()
		return err
	}
	return a.Storage.Close()
}
