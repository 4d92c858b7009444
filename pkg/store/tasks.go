package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/devswarm/devswarm/pkg/models"
)

const taskColumns = `
	t.id, t.title, t.description, t.status, t.priority,
	COALESCE(t.created_by, ''), t.created_at, t.updated_at`

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status,
		&t.Priority, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) collectTasks(ctx context.Context, rows pgx.Rows) ([]models.Task, error) {
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		assignees, err := s.TaskAssignees(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].AssignedAgents = assignees
	}
	return tasks, nil
}

// ListTasks returns all tasks with their assignees, highest priority first.
func (s *Store) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		ORDER BY t.priority DESC, t.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return s.collectTasks(ctx, rows)
}

// TasksByAgent returns the tasks assigned to one agent.
func (s *Store) TasksByAgent(ctx context.Context, agentID string) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		JOIN task_assignments ta ON t.id = ta.task_id
		WHERE ta.agent_id = $1
		ORDER BY t.priority DESC, t.created_at DESC
	`, agentID)
	if err != nil {
		return nil, err
	}
	return s.collectTasks(ctx, rows)
}

// GetTask returns one task with assignees, or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id))
	if err != nil {
		return models.Task{}, notFoundOr(err)
	}
	if t.AssignedAgents, err = s.TaskAssignees(ctx, id); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// TaskAssignees returns the set of agent ids assigned to a task. The join
// table's primary key keeps the set free of duplicates.
func (s *Store) TaskAssignees(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agent_id FROM task_assignments WHERE task_id = $1 ORDER BY agent_id
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		agents = append(agents, id)
	}
	return agents, rows.Err()
}

// CreateTask inserts a task plus its assignments and returns the stored row.
func (s *Store) CreateTask(ctx context.Context, req models.TaskCreateRequest) (models.Task, error) {
	var createdBy any
	if req.CreatedBy != "" {
		createdBy = req.CreatedBy
	}

	t, err := scanTask(s.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, priority, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, title, description, status, priority,
		          COALESCE(created_by, ''), created_at, updated_at
	`, req.Title, req.Description, req.Status, req.Priority, createdBy))
	if err != nil {
		return models.Task{}, err
	}

	for _, agentID := range req.AssignedAgents {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO task_assignments (task_id, agent_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, t.ID, agentID)
		if err != nil {
			return models.Task{}, err
		}
	}

	if t.AssignedAgents, err = s.TaskAssignees(ctx, t.ID); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// UpdateTaskStatus moves a task to the given status and returns the updated
// row with assignees.
func (s *Store) UpdateTaskStatus(ctx context.Context, id, status string) (models.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `
		UPDATE tasks t SET status = $1, updated_at = NOW()
		WHERE t.id = $2
		RETURNING t.id, t.title, t.description, t.status, t.priority,
		          COALESCE(t.created_by, ''), t.created_at, t.updated_at
	`, status, id))
	if err != nil {
		return models.Task{}, notFoundOr(err)
	}
	if t.AssignedAgents, err = s.TaskAssignees(ctx, id); err != nil {
		return models.Task{}, err
	}
	return t, nil
}
