// Package api exposes the HTTP and WebSocket surface of the service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devswarm/devswarm/pkg/bus"
	"github.com/devswarm/devswarm/pkg/config"
	"github.com/devswarm/devswarm/pkg/hub"
	"github.com/devswarm/devswarm/pkg/models"
	"github.com/devswarm/devswarm/pkg/store"
)

// Store is the persistence surface the handlers need. Implemented by
// *store.Store.
type Store interface {
	Ping(ctx context.Context) error
	ListAgents(ctx context.Context) ([]models.Agent, error)
	GetAgent(ctx context.Context, id string) (models.Agent, error)
	UpdateAgent(ctx context.Context, id string, patch store.AgentPatch) (models.Agent, error)
	BulkUpdateAgents(ctx context.Context, status, room string) error
	ListTasks(ctx context.Context) ([]models.Task, error)
	TasksByAgent(ctx context.Context, agentID string) ([]models.Task, error)
	CreateTask(ctx context.Context, req models.TaskCreateRequest) (models.Task, error)
	UpdateTaskStatus(ctx context.Context, id, status string) (models.Task, error)
	RecentMessages(ctx context.Context, limit int, agentID string) ([]models.Message, error)
	CreateMessage(ctx context.Context, req models.MessageCreateRequest) (models.Message, error)
	AgentCosts(ctx context.Context) ([]models.AgentCost, error)
	ActivityLog(ctx context.Context, limit int) ([]models.ActivityEntry, error)
	LogActivity(ctx context.Context, agentID, action string, details any) error
	RecordCost(ctx context.Context, agentID string, inputTokens, outputTokens int, costUSD float64) error
	BumpVersion(ctx context.Context) (int64, error)
}

// Snapshotter serves the GET /api/state body and the initial WebSocket
// frame. Implemented by *state.Assembler.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, int64, error)
}

// Publisher emits post-mutation events. Implemented by *state.Publisher.
type Publisher interface {
	PublishDelta(ctx context.Context, category, id string, data any)
	NotifyStateChanged(ctx context.Context)
}

// GoalQueue is the producer side of the task queue. Implemented by
// *bus.Client.
type GoalQueue interface {
	Available() bool
	EnqueueGoal(ctx context.Context, goal bus.Goal) error
}

// Server wires the handlers, middleware and routes.
type Server struct {
	store     Store
	assembler Snapshotter
	pub       Publisher
	queue     GoalQueue
	hub       *hub.Hub
	cfg       config.Config
	logger    *slog.Logger

	echo *echo.Echo
	http *http.Server
}

func NewServer(st Store, assembler Snapshotter, pub Publisher, queue GoalQueue,
	h *hub.Hub, cfg config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		store:     st,
		assembler: assembler,
		pub:       pub,
		queue:     queue,
		hub:       h,
		cfg:       cfg,
		logger:    logger,
		echo:      echo.New(),
	}
	if err := s.routes(); err != nil {
		return nil, err
	}

	s.http = &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: s.echo,
	}
	return s, nil
}

func (s *Server) routes() error {
	e := s.echo

	e.Use(recoverMiddleware(s.logger))
	e.Use(requestLogger(s.logger))
	e.Use(corsMiddleware(s.cfg.AllowedOrigins))

	// Health and the WebSocket upgrade stay outside bearer auth: health is
	// probed by infrastructure, and browsers cannot attach headers to a
	// WebSocket handshake. They also stay outside the request timeout,
	// which would tear down long-lived WebSocket sessions.
	e.GET("/health", s.healthHandler)
	e.GET("/api/health", s.healthHandler)
	e.GET("/ws", s.wsHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	g := e.Group("/api")
	g.Use(requestTimeout(s.cfg.RequestTimeout))
	g.Use(bearerAuth(s.cfg.APIToken))

	g.GET("/agents", s.listAgentsHandler)
	g.GET("/agents/:id", s.getAgentHandler)
	g.PATCH("/agents/:id", s.patchAgentHandler)

	g.GET("/tasks", s.listTasksHandler)
	g.POST("/tasks", s.createTaskHandler)
	g.PATCH("/tasks/:id/status", s.taskStatusHandler)

	g.GET("/messages", s.listMessagesHandler)
	g.POST("/messages", s.createMessageHandler)

	g.GET("/state", s.getStateHandler)
	g.POST("/state/override", s.overrideStateHandler)

	g.GET("/costs", s.costsHandler)
	g.POST("/costs", s.recordCostHandler)
	g.GET("/activity", s.activityHandler)

	g.POST("/goals", s.enqueueGoalHandler)

	return s.registerProxyRoutes(g)
}

// Start serves until Shutdown or a listener failure.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// bumpAndPublish runs the post-mutation tail shared by all mutating
// handlers: one version bump, then the best-effort delta. A bump failure is
// logged, not surfaced; the write already committed and the heartbeat will
// reconcile clients.
func (s *Server) bumpAndPublish(ctx context.Context, category, id string, data any) {
	if _, err := s.store.BumpVersion(ctx); err != nil {
		s.logger.Warn("Failed to bump state version", "error", err)
	}
	s.pub.PublishDelta(ctx, category, id, data)
}
