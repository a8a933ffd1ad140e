// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ojportal/internal/avatar"
	"github.com/starford/ojportal/internal/sse"
)

// NewLogger returns the JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run starts the portal server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := NewLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("api_base_url", cfg.API.BaseURL()),
		slog.String("store_path", cfg.Session.StorePath),
		slog.Bool("enforce_auth", cfg.Router.EnforceAuth),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker doubles as the page navigator: a forced logout reloads
	// every open page at "/".
	broker := sse.NewBroker(
		sse.WithThrottle(cfg.Avatars.Throttle),
		sse.WithLogger(logger.With(slog.String("component", "sse"))),
	)
	defer broker.Close()

	portal, err := NewPortal(cfg, logger, broker, append(opts, WithRuntimeMetrics())...)
	if err != nil {
		return fmt.Errorf("init portal: %w", err)
	}
	defer portal.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           NewHandler(portal, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	// Start avatar watcher with SSE callback.
	if dir := cfg.Avatars.WatchDir; dir != "" {
		g.Go(func() error {
			watchLogger := logger.With(slog.String("component", "avatar"))
			err := avatar.Watch(gCtx, dir, portal.Avatars.Registry(), watchLogger, func(userID, ts int64) {
				portal.Metrics.AvatarInvalidated(1)
				broker.PublishAvatar(userID, ts)
			})
			if err != nil {
				watchLogger.Error("avatar watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		stop()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
