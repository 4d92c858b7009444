// Package dispatcher scans for idle agents and drains their pending tasks
// through the execution engine, emitting the task and agent transitions the
// dashboard watches.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devswarm/devswarm/pkg/metrics"
	"github.com/devswarm/devswarm/pkg/models"
	"github.com/devswarm/devswarm/pkg/store"
)

// orchestratorAgent names the synthetic sender used for system messages.
const orchestratorAgent = "orchestrator"

// Store is the slice of persistence the dispatcher needs.
type Store interface {
	ListAgents(ctx context.Context) ([]models.Agent, error)
	UpdateAgent(ctx context.Context, id string, patch store.AgentPatch) (models.Agent, error)
	TasksByAgent(ctx context.Context, agentID string) ([]models.Task, error)
	UpdateTaskStatus(ctx context.Context, id, status string) (models.Task, error)
	CreateMessage(ctx context.Context, req models.MessageCreateRequest) (models.Message, error)
	LogActivity(ctx context.Context, agentID, action string, details any) error
	BumpVersion(ctx context.Context) (int64, error)
}

// Executor runs one task on behalf of an agent and returns a result note.
type Executor interface {
	// Known reports whether the executor can run tasks for this agent.
	Known(agentID string) bool
	Execute(ctx context.Context, agentID string, task models.Task) (string, error)
}

// Publisher emits delta frames after mutations. Satisfied by
// *state.Publisher.
type Publisher interface {
	PublishDelta(ctx context.Context, category, id string, data any)
}

// Dispatcher is the idle-agent scan loop.
type Dispatcher struct {
	store    Store
	exec     Executor
	pub      Publisher
	locks    *agentLocks
	interval time.Duration
	logger   *slog.Logger

	// drains tracks in-flight per-agent drain goroutines so Run can wait
	// for them on shutdown.
	drains sync.WaitGroup
}

func New(st Store, exec Executor, pub Publisher, interval time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		exec:     exec,
		pub:      pub,
		locks:    newAgentLocks(),
		interval: interval,
		logger:   logger,
	}
}

// Run scans on the configured interval until the context ends, then waits
// for in-flight drains. Cancellation is honored between tasks; a task
// already executing completes.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Dispatcher started", "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drains.Wait()
			return
		case <-ticker.C:
			d.cycle(ctx)
		}
	}
}

// cycle finds idle agents and starts a drain for each one not already
// draining. Agents drain concurrently with each other; the per-agent lock
// keeps each agent's tasks strictly sequential.
func (d *Dispatcher) cycle(ctx context.Context) {
	metrics.DispatchCycles.Inc()

	agents, err := d.store.ListAgents(ctx)
	if err != nil {
		d.logger.Warn("Dispatch scan failed to list agents", "error", err)
		return
	}

	for _, agent := range agents {
		if agent.Status != models.AgentIdle {
			continue
		}
		release, ok := d.locks.tryAcquire(agent.ID)
		if !ok {
			continue
		}

		d.drains.Add(1)
		go func(agentID string) {
			defer d.drains.Done()
			defer release()
			d.drainAgent(ctx, agentID)
		}(agent.ID)
	}
}

// drainAgent works through the agent's pending tasks one at a time until
// none remain or the context ends. The task list is re-read after every
// task so work queued mid-drain is picked up in the same pass.
func (d *Dispatcher) drainAgent(ctx context.Context, agentID string) {
	for ctx.Err() == nil {
		task, ok, err := d.nextPending(ctx, agentID)
		if err != nil {
			d.logger.Warn("Failed to load pending tasks", "agent_id", agentID, "error", err)
			return
		}
		if !ok {
			return
		}
		d.runTask(ctx, agentID, task)
	}
}

// nextPending returns the highest-priority task still awaiting work.
// Besides Backlog this includes In Progress and Review tasks, which are
// stale leftovers from an interrupted run and must not be stranded.
func (d *Dispatcher) nextPending(ctx context.Context, agentID string) (models.Task, bool, error) {
	tasks, err := d.store.TasksByAgent(ctx, agentID)
	if err != nil {
		return models.Task{}, false, err
	}
	for _, t := range tasks {
		switch t.Status {
		case models.TaskBacklog, models.TaskInProgress, models.TaskReview:
			return t, true, nil
		}
	}
	return models.Task{}, false, nil
}

func (d *Dispatcher) runTask(ctx context.Context, agentID string, task models.Task) {
	if !d.exec.Known(agentID) {
		d.blockTask(ctx, agentID, task, "no executor registered for agent",
			"task_blocked_unknown_agent")
		return
	}

	// A stale Review task already ran; it only needs its review resolved.
	if task.Status == models.TaskReview {
		d.completeTask(ctx, agentID, task, "Reviewed and closed stale task")
		return
	}

	if task.Status == models.TaskBacklog {
		started, err := d.setTaskStatus(ctx, task.ID, models.TaskInProgress)
		if err != nil {
			d.logger.Warn("Failed to start task", "task_id", task.ID, "error", err)
			return
		}
		// Carry the stored status forward so a later failure blocks from
		// In Progress, not from the stale Backlog copy.
		task = started
	}

	d.setAgent(ctx, agentID, store.AgentPatch{
		Status:       ptr(models.AgentWorking),
		CurrentTask:  ptr(task.Title),
		ThoughtChain: ptr("Working on: " + task.Title),
	})

	result, err := d.exec.Execute(ctx, agentID, task)
	if err != nil {
		// Shutdown mid-run is not a failure: the task stays In Progress
		// and the next scan resumes it.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		d.logger.Error("Task execution failed", "task_id", task.ID, "agent_id", agentID, "error", err)
		d.blockTask(ctx, agentID, task, err.Error(), "task_blocked_error")
	} else {
		if _, reviewErr := d.setTaskStatus(ctx, task.ID, models.TaskReview); reviewErr != nil {
			d.logger.Warn("Failed to move task to review", "task_id", task.ID, "error", reviewErr)
		}
		d.completeTask(ctx, agentID, task, result)
		metrics.TasksDispatched.Inc()
	}

	// Back to Idle so the drain can pick up the next task. The thought
	// chain keeps the last run's note.
	d.setAgent(ctx, agentID, store.AgentPatch{
		Status:      ptr(models.AgentIdle),
		CurrentTask: ptr(""),
	})
}

// completeTask closes a task in Review and announces the completion.
func (d *Dispatcher) completeTask(ctx context.Context, agentID string, task models.Task, result string) {
	if _, err := d.setTaskStatus(ctx, task.ID, models.TaskDone); err != nil {
		d.logger.Warn("Failed to close task", "task_id", task.ID, "error", err)
		return
	}

	if result == "" {
		result = "Completed task: " + task.Title
	}
	d.say(ctx, agentID, orchestratorAgent, result, "task_complete")
	d.say(ctx, orchestratorAgent, "",
		fmt.Sprintf("%s finished %q", agentID, task.Title), "chat")

	d.logActivity(ctx, agentID, "task_completed", map[string]any{
		"task_id": task.ID,
		"title":   task.Title,
	})
}

// blockTask parks a task in Blocked, passing through In Progress first when
// it never started, and records why.
func (d *Dispatcher) blockTask(ctx context.Context, agentID string, task models.Task, reason, action string) {
	if task.Status == models.TaskBacklog {
		if _, err := d.setTaskStatus(ctx, task.ID, models.TaskInProgress); err != nil {
			d.logger.Warn("Failed to start task before blocking", "task_id", task.ID, "error", err)
			return
		}
	}
	if _, err := d.setTaskStatus(ctx, task.ID, models.TaskBlocked); err != nil {
		d.logger.Warn("Failed to block task", "task_id", task.ID, "error", err)
		return
	}

	d.say(ctx, agentID, orchestratorAgent,
		fmt.Sprintf("Blocked on %q: %s", task.Title, reason), "task_blocked")
	d.logActivity(ctx, agentID, action, map[string]any{
		"task_id": task.ID,
		"title":   task.Title,
		"reason":  reason,
	})
}

// setTaskStatus persists the transition, bumps the version and publishes
// the task delta.
func (d *Dispatcher) setTaskStatus(ctx context.Context, taskID, status string) (models.Task, error) {
	t, err := d.store.UpdateTaskStatus(ctx, taskID, status)
	if err != nil {
		return models.Task{}, err
	}
	d.bumpAndPublish(ctx, models.CategoryTasks, t.ID, t)
	return t, nil
}

func (d *Dispatcher) setAgent(ctx context.Context, agentID string, patch store.AgentPatch) {
	a, err := d.store.UpdateAgent(ctx, agentID, patch)
	if err != nil {
		d.logger.Warn("Failed to update agent", "agent_id", agentID, "error", err)
		return
	}
	d.bumpAndPublish(ctx, models.CategoryAgents, a.ID, a)
}

func (d *Dispatcher) say(ctx context.Context, from, to, content, messageType string) {
	m, err := d.store.CreateMessage(ctx, models.MessageCreateRequest{
		FromAgent:   from,
		ToAgent:     to,
		Content:     content,
		MessageType: messageType,
	})
	if err != nil {
		d.logger.Warn("Failed to record message", "from", from, "error", err)
		return
	}
	d.bumpAndPublish(ctx, models.CategoryMessages, m.ID, m)
}

// bumpAndPublish runs the post-mutation tail: one version bump, then the
// best-effort delta. The mutation is already durable, so failures here are
// logged and absorbed.
func (d *Dispatcher) bumpAndPublish(ctx context.Context, category, id string, data any) {
	if _, err := d.store.BumpVersion(ctx); err != nil {
		d.logger.Warn("Failed to bump state version", "error", err)
	}
	d.pub.PublishDelta(ctx, category, id, data)
}

func (d *Dispatcher) logActivity(ctx context.Context, agentID, action string, details map[string]any) {
	if err := d.store.LogActivity(ctx, agentID, action, details); err != nil {
		d.logger.Warn("Failed to record activity", "action", action, "error", err)
	}
}

func ptr(s string) *string { return &s }
