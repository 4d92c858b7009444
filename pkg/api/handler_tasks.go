package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/devswarm/devswarm/pkg/models"
)

// listTasksHandler handles GET /api/tasks.
func (s *Server) listTasksHandler(c *echo.Context) error {
	ctx := c.Request().Context()

	if agentID := c.QueryParam("agent_id"); agentID != "" {
		tasks, err := s.store.TasksByAgent(ctx, agentID)
		if err != nil {
			return mapStoreError(err)
		}
		return c.JSON(http.StatusOK, tasks)
	}

	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, tasks)
}

// createTaskHandler handles POST /api/tasks.
func (s *Server) createTaskHandler(c *echo.Context) error {
	var req models.TaskCreateRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if req.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if req.Status == "" {
		req.Status = models.TaskBacklog
	}
	if !models.ValidTaskStatus(req.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+req.Status)
	}

	ctx := c.Request().Context()
	task, err := s.store.CreateTask(ctx, req)
	if err != nil {
		return mapStoreError(err)
	}

	// The delta carries the stored entity, with assignees and server
	// timestamps, so clients never need a follow-up read.
	s.bumpAndPublish(ctx, models.CategoryTasks, task.ID, task)
	if err := s.store.LogActivity(ctx, req.CreatedBy, "task_created", map[string]any{
		"task_id": task.ID,
		"title":   task.Title,
	}); err != nil {
		s.logger.Warn("Failed to record activity", "action", "task_created", "error", err)
	}

	return c.JSON(http.StatusCreated, map[string]string{"id": task.ID})
}

// taskStatusHandler handles PATCH /api/tasks/:id/status.
func (s *Server) taskStatusHandler(c *echo.Context) error {
	taskID := c.Param("id")
	if taskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}

	var req models.TaskStatusRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if !models.ValidTaskStatus(req.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+req.Status)
	}

	ctx := c.Request().Context()
	task, err := s.store.UpdateTaskStatus(ctx, taskID, req.Status)
	if err != nil {
		return mapStoreError(err)
	}

	s.bumpAndPublish(ctx, models.CategoryTasks, task.ID, task)
	if err := s.store.LogActivity(ctx, "", "task_status_changed", map[string]any{
		"task_id": task.ID,
		"status":  task.Status,
	}); err != nil {
		s.logger.Warn("Failed to record activity", "action", "task_status_changed", "error", err)
	}

	return c.JSON(http.StatusOK, task)
}
