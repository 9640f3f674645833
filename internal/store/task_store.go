package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Task represents a unit of work on a project's board.
type Task struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	ProjectID     string           `json:"project_id"`
	Title         string           `json:"title"`
	Description   *string          `json:"description,omitempty"`
	Status        string           `json:"status"`
	OrderIndex    int              `json:"order_index"`
	EstimateHours *decimal.Decimal `json:"estimate_hours,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// TaskStore provides owner-scoped access to tasks.
type TaskStore struct {
	db *sql.DB
}

// NewTaskStore creates a new TaskStore with the given database connection.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// CreateTaskInput defines the input for creating a new task.
type CreateTaskInput struct {
	ProjectID     string
	Title         string
	Description   *string
	Status        string
	EstimateHours *decimal.Decimal
}

// UpdateTaskInput defines the input for updating a task. The status is
// changed only through Move.
type UpdateTaskInput struct {
	Title         string
	Description   *string
	EstimateHours *decimal.Decimal
}

const taskSelectColumns = "id, user_id, project_id, title, description, status, order_index, estimate_hours, created_at, updated_at"

// GetByID retrieves one of the owner's tasks.
func (s *TaskStore) GetByID(ctx context.Context, id string) (*Task, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	task, err := scanTask(s.db.QueryRowContext(ctx, "SELECT "+taskSelectColumns+" FROM tasks WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	if task.UserID != ownerID {
		return nil, ErrForbidden
	}

	return &task, nil
}

// ListByProject returns a project's tasks in board order.
func (s *TaskStore) ListByProject(ctx context.Context, projectID string) ([]Task, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(projectID) {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskSelectColumns+" FROM tasks WHERE user_id = $1 AND project_id = $2 ORDER BY order_index ASC, created_at ASC",
		ownerID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListByOwner returns every task of the owner.
func (s *TaskStore) ListByOwner(ctx context.Context) ([]Task, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskSelectColumns+" FROM tasks WHERE user_id = $1 ORDER BY created_at DESC",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// Create appends a task to the end of its status group. The project must
// belong to the owner.
func (s *TaskStore) Create(ctx context.Context, input CreateTaskInput) (*Task, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(input.ProjectID) {
		return nil, ErrNotFound
	}

	query := `INSERT INTO tasks (
		user_id, project_id, title, description, status, order_index, estimate_hours
	)
	SELECT p.user_id, p.id, $3::text, $4::text, $5::text,
		(SELECT COUNT(*) FROM tasks o WHERE o.user_id = p.user_id AND o.project_id = p.id AND o.status = $5::text),
		$6::numeric
	FROM projects p
	WHERE p.id = $2 AND p.user_id = $1
	RETURNING ` + taskSelectColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query,
		ownerID,
		input.ProjectID,
		strings.TrimSpace(input.Title),
		nullableString(input.Description),
		input.Status,
		nullableDecimal(input.EstimateHours),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return &task, nil
}

// Update replaces a task's title, description and estimate.
func (s *TaskStore) Update(ctx context.Context, id string, input UpdateTaskInput) (*Task, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	query := `UPDATE tasks SET title = $1, description = $2, estimate_hours = $3
	WHERE id = $4 AND user_id = $5
	RETURNING ` + taskSelectColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query,
		strings.TrimSpace(input.Title),
		nullableString(input.Description),
		nullableDecimal(input.EstimateHours),
		id,
		ownerID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return &task, nil
}

// Move sets a task's status and places it after the tasks already in that status.
func (s *TaskStore) Move(ctx context.Context, id string, status string) (*Task, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	query := `UPDATE tasks t SET
		status = $1::text,
		order_index = (
			SELECT COUNT(*) FROM tasks o
			WHERE o.user_id = t.user_id AND o.project_id = t.project_id AND o.status = $1::text AND o.id <> t.id
		)
	WHERE t.id = $2 AND t.user_id = $3
	RETURNING ` + taskSelectColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query, status, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to move task: %w", err)
	}

	return &task, nil
}

// Delete removes one of the owner's tasks.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if !ValidID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireRowsAffected(result, "delete")
}

func collectTasks(rows *sql.Rows) ([]Task, error) {
	tasks := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(scanner interface{ Scan(...any) error }) (Task, error) {
	var task Task
	var description sql.NullString
	var estimate decimal.NullDecimal

	err := scanner.Scan(
		&task.ID,
		&task.UserID,
		&task.ProjectID,
		&task.Title,
		&description,
		&task.Status,
		&task.OrderIndex,
		&estimate,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return task, err
	}

	task.Description = stringPtr(description)
	if estimate.Valid {
		task.EstimateHours = &estimate.Decimal
	}

	return task, nil
}

func nullableDecimal(value *decimal.Decimal) interface{} {
	if value == nil {
		return nil
	}
	return value.String()
}
