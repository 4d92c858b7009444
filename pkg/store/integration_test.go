//go:build integration

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/devswarm/devswarm/pkg/models"
)

// All tests in this file share one database. In CI an external PostgreSQL is
// provided via TEST_DATABASE_URL; locally a testcontainer is started once per
// package. Tests use unique entity ids so they do not step on each other.
var (
	sharedStore *Store
	setupOnce   sync.Once
	setupErr    error
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	setupOnce.Do(func() {
		ctx := context.Background()

		connStr := os.Getenv("TEST_DATABASE_URL")
		if connStr == "" {
			container, err := postgres.Run(ctx,
				"postgres:17-alpine",
				postgres.WithDatabase("devswarm_test"),
				postgres.WithUsername("test"),
				postgres.WithPassword("test"),
				testcontainers.WithWaitStrategy(
					wait.ForLog("database system is ready to accept connections").
						WithOccurrence(2).
						WithStartupTimeout(30*time.Second)),
			)
			if err != nil {
				setupErr = fmt.Errorf("starting postgres container: %w", err)
				return
			}
			connStr, err = container.ConnectionString(ctx, "sslmode=disable")
			if err != nil {
				setupErr = fmt.Errorf("resolving connection string: %w", err)
				return
			}
		}

		// New runs the migrations, which is half of what these tests cover.
		sharedStore, setupErr = New(ctx, connStr)
	})
	require.NoError(t, setupErr)
	return sharedStore
}

// seedAgent inserts an agent row directly; agents are provisioned by
// migrations or operators in production, so the store has no create API.
func seedAgent(t *testing.T, st *Store, id string) {
	t.Helper()
	_, err := st.pool.Exec(context.Background(), `
		INSERT INTO agents (id, name, role, tech_stack)
		VALUES ($1, $1, 'engineer', '{"go"}')
		ON CONFLICT (id) DO NOTHING
	`, id)
	require.NoError(t, err)
}

func TestVersionIsMonotonic(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	last, err := st.Version(ctx)
	require.NoError(t, err)
	require.Positive(t, last)

	for i := 0; i < 5; i++ {
		bumped, err := st.BumpVersion(ctx)
		require.NoError(t, err)
		assert.Greater(t, bumped, last)
		last = bumped
	}

	current, err := st.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, last, current)
}

func TestUpdateStateJSONBumpsVersion(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	before, err := st.Version(ctx)
	require.NoError(t, err)

	err = st.UpdateStateJSON(ctx, map[string]any{"sprint": 12, "focus": "launch"})
	require.NoError(t, err)

	after, err := st.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}

func TestTaskLifecycle(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAgent(t, st, "it_lifecycle_coder")
	seedAgent(t, st, "it_lifecycle_reviewer")

	created, err := st.CreateTask(ctx, models.TaskCreateRequest{
		Title:          "Ship the exporter",
		Description:    "Wire the nightly export job",
		Status:         models.TaskBacklog,
		Priority:       3,
		CreatedBy:      "orchestrator",
		AssignedAgents: []string{"it_lifecycle_coder", "it_lifecycle_reviewer", "it_lifecycle_coder"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Ship the exporter", created.Title)
	assert.Equal(t, models.TaskBacklog, created.Status)
	assert.Equal(t, "orchestrator", created.CreatedBy)
	// Duplicate assignees collapse in the join table.
	assert.Equal(t, []string{"it_lifecycle_coder", "it_lifecycle_reviewer"}, created.AssignedAgents)

	fetched, err := st.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.AssignedAgents, fetched.AssignedAgents)

	byAgent, err := st.TasksByAgent(ctx, "it_lifecycle_reviewer")
	require.NoError(t, err)
	require.Len(t, byAgent, 1)
	assert.Equal(t, created.ID, byAgent[0].ID)

	updated, err := st.UpdateTaskStatus(ctx, created.ID, models.TaskInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, updated.Status)
	assert.Equal(t, created.AssignedAgents, updated.AssignedAgents)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	_, err = st.UpdateTaskStatus(ctx, uuid.NewString(), models.TaskDone)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetTaskNotFound(t *testing.T) {
	st := setupStore(t)

	_, err := st.GetTask(context.Background(), uuid.NewString())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAgentPatch(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAgent(t, st, "it_patch_agent")

	status := models.AgentWorking
	room := models.RoomWarRoom
	task := "Ship the exporter"
	updated, err := st.UpdateAgent(ctx, "it_patch_agent", AgentPatch{
		Status:      &status,
		CurrentRoom: &room,
		CurrentTask: &task,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AgentWorking, updated.Status)
	assert.Equal(t, models.RoomWarRoom, updated.CurrentRoom)
	assert.Equal(t, task, updated.CurrentTask)

	// A partial patch leaves the other fields alone.
	idle := models.AgentIdle
	updated, err = st.UpdateAgent(ctx, "it_patch_agent", AgentPatch{Status: &idle})
	require.NoError(t, err)
	assert.Equal(t, models.AgentIdle, updated.Status)
	assert.Equal(t, models.RoomWarRoom, updated.CurrentRoom)
	assert.Equal(t, task, updated.CurrentTask)

	_, err = st.UpdateAgent(ctx, "it_no_such_agent", AgentPatch{Status: &idle})
	assert.True(t, errors.Is(err, ErrNotFound))

	fetched, err := st.GetAgent(ctx, "it_patch_agent")
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, fetched.TechStack)
}

func TestBulkUpdateAgents(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAgent(t, st, "it_bulk_a")
	seedAgent(t, st, "it_bulk_b")

	err := st.BulkUpdateAgents(ctx, models.AgentClockedOut, models.RoomLounge)
	require.NoError(t, err)

	for _, id := range []string{"it_bulk_a", "it_bulk_b"} {
		agent, err := st.GetAgent(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.AgentClockedOut, agent.Status)
		assert.Equal(t, models.RoomLounge, agent.CurrentRoom)
	}
}

func TestMessagesFilterAndLimit(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.CreateMessage(ctx, models.MessageCreateRequest{
			FromAgent: "it_msgs_sender",
			Content:   fmt.Sprintf("status update %d", i),
		})
		require.NoError(t, err)
	}
	received, err := st.CreateMessage(ctx, models.MessageCreateRequest{
		FromAgent:   "it_msgs_other",
		ToAgent:     "it_msgs_sender",
		Content:     "ack",
		MessageType: "task_complete",
	})
	require.NoError(t, err)
	assert.Equal(t, "task_complete", received.MessageType)

	// The agent filter matches both directions.
	messages, err := st.RecentMessages(ctx, 50, "it_msgs_sender")
	require.NoError(t, err)
	require.Len(t, messages, 4)
	// Newest first.
	assert.Equal(t, "ack", messages[0].Content)

	messages, err = st.RecentMessages(ctx, 2, "it_msgs_sender")
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	// An omitted message type defaults to chat; empty endpoints scan as "".
	chat, err := st.CreateMessage(ctx, models.MessageCreateRequest{Content: "system note"})
	require.NoError(t, err)
	assert.Equal(t, "chat", chat.MessageType)
	assert.Empty(t, chat.FromAgent)
	assert.Empty(t, chat.ToAgent)
}

func TestActivityLog(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	err := st.LogActivity(ctx, "it_activity_agent", "task_completed", map[string]any{
		"task_id": "t-42",
	})
	require.NoError(t, err)
	require.NoError(t, st.LogActivity(ctx, "", "state_override", nil))

	entries, err := st.ActivityLog(ctx, 50)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var completed, override *models.ActivityEntry
	for i := range entries {
		switch {
		case entries[i].Action == "task_completed" && entries[i].AgentID == "it_activity_agent":
			completed = &entries[i]
		case entries[i].Action == "state_override" && entries[i].AgentID == "":
			override = &entries[i]
		}
	}
	require.NotNil(t, completed)
	assert.Equal(t, "t-42", completed.Details["task_id"])
	require.NotNil(t, override)
	assert.NotNil(t, override.Details)
}

func TestAgentCostsAggregate(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordCost(ctx, "it_costs_agent", 1000, 250, 0.015))
	require.NoError(t, st.RecordCost(ctx, "it_costs_agent", 500, 100, 0.005))

	costs, err := st.AgentCosts(ctx)
	require.NoError(t, err)

	var found *models.AgentCost
	for i := range costs {
		if costs[i].AgentID == "it_costs_agent" {
			found = &costs[i]
			break
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 1500, found.InputTokens)
	assert.Equal(t, 350, found.OutputTokens)
	assert.InDelta(t, 0.02, found.CostUSD, 1e-9)
}

func TestGetFullStateCarriesCurrentVersion(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	seedAgent(t, st, "it_fullstate_agent")

	before, err := st.BumpVersion(ctx)
	require.NoError(t, err)

	state, err := st.GetFullState(ctx, 20)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, state.Version, before)
	assert.LessOrEqual(t, len(state.Messages), 20)

	var seen bool
	for _, a := range state.Agents {
		if a.ID == "it_fullstate_agent" {
			seen = true
		}
	}
	assert.True(t, seen, "snapshot must include every agent")
}
