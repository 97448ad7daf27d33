package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thefall/sessionserver/internal/api"
	"github.com/thefall/sessionserver/internal/config"
	"github.com/thefall/sessionserver/internal/factory"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile, envFile string

	cmd := &cobra.Command{
		Use:   "thefall-server",
		Short: "Session server for TheFall",
		Long: `thefall-server accepts websocket connections from TheFall clients and runs
accounts, friends, lobbies and live games for them.

Settings are read from defaults, then the --config YAML file, then the
environment (THEFALL_*, plus EMAIL and APP_PASSWORD for SMTP, optionally
from a .env file), then flags.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Sources{
				File:    configFile,
				EnvFile: envFile,
				Environ: os.Environ(),
				Flags:   cmd.Flags(),
			})
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file with credentials")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	app, err := factory.New(factory.Config{Server: cfg, Logger: logger})
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return err
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	serverConfig.ShutdownTimeout = cfg.ShutdownTimeout
	server := api.NewServer(app.Handler, serverConfig, logger, app.WS)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.Workers.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.Storage))

	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("server error", slog.String("error", runErr.Error()))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			runErr = err
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		logger.Error("close error", slog.String("error", err.Error()))
		if runErr == nil {
			runErr = fmt.Errorf("close: %w", err)
		}
	}

	logger.Info("server stopped")
	return runErr
}
