// DevSwarm state distribution server. Serves the office HTTP API, fans
// state out to WebSocket dashboards, and runs the queue worker and the
// idle-agent dispatcher.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/devswarm/devswarm/pkg/api"
	"github.com/devswarm/devswarm/pkg/bus"
	"github.com/devswarm/devswarm/pkg/config"
	"github.com/devswarm/devswarm/pkg/dispatcher"
	"github.com/devswarm/devswarm/pkg/hub"
	"github.com/devswarm/devswarm/pkg/state"
	"github.com/devswarm/devswarm/pkg/store"
	"github.com/devswarm/devswarm/pkg/worker"
)

// resolveConsumerID names this process inside the queue consumer group.
// Priority: POD_ID env > HOSTNAME env > random suffix.
func resolveConsumerID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "devswarm-" + uuid.New().String()[:8]
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	consumerID := resolveConsumerID()
	logger.Info("Starting DevSwarm", "http_port", cfg.HTTPPort, "consumer_id", consumerID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Store (runs migrations).
	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("Connected to PostgreSQL database")

	// 2. Event bus. A failed connection is non-fatal: the bridge degrades
	// to heartbeat polling and publishes become no-ops.
	busClient, err := bus.Connect(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Warn("Event bus unavailable, running degraded", "error", err)
	} else {
		logger.Info("Connected to event bus")
	}
	defer busClient.Close()

	// 3. Hub and broadcast path.
	h := hub.New(cfg.HubSendBuffer, logger)
	assembler := state.NewAssembler(st, cfg.SnapshotMessagesLimit)
	publisher := state.NewPublisher(busClient, logger)
	bridge := state.NewBridge(assembler, st.Version, busClient, h.Broadcast,
		cfg.HeartbeatInterval, logger)

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		h.Run(ctx)
	}()
	go func() {
		defer background.Done()
		bridge.Run(ctx)
	}()

	// 4. Queue worker. With a dead bus at boot it waits in the background,
	// retrying the connection on the heartbeat interval, and starts once
	// Redis comes back.
	orch := worker.NewHTTPOrchestrator(cfg.AIEngineURL)
	w := worker.New(busClient, orch, st, consumerID, logger)
	background.Add(1)
	go func() {
		defer background.Done()
		for !busClient.Available() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.HeartbeatInterval):
			}
			if err := busClient.Reconnect(ctx); err != nil {
				continue
			}
			logger.Info("Event bus connection restored, starting queue worker")
		}
		if err := w.Run(ctx); err != nil {
			logger.Error("Queue worker stopped", "error", err)
		}
	}()

	// 5. Dispatcher.
	executor := dispatcher.NewHTTPExecutor(cfg.AIEngineURL, cfg.ExecutorAgents)
	disp := dispatcher.New(st, executor, publisher, cfg.DispatchInterval, logger)
	background.Add(1)
	go func() {
		defer background.Done()
		disp.Run(ctx)
	}()

	// 6. HTTP server.
	server, err := api.NewServer(st, assembler, publisher, busClient, h, *cfg, logger)
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info("DevSwarm started successfully")

	// 7. Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
		stop()
	}

	// 8. Graceful shutdown: stop accepting requests, then wait for the
	// background loops to drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	stop()
	background.Wait()
	logger.Info("DevSwarm stopped")
}
