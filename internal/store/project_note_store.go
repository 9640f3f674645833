package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ProjectNote is a free-form note attached to a project, optionally linked
// to one of its tasks or resources.
type ProjectNote struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ProjectID  string    `json:"project_id"`
	Title      string    `json:"title"`
	Content    *string   `json:"content,omitempty"`
	Tags       []string  `json:"tags"`
	TaskID     *string   `json:"task_id,omitempty"`
	ResourceID *string   `json:"resource_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProjectNoteInput struct {
	Title      string
	Content    *string
	Tags       []string
	TaskID     *string
	ResourceID *string
}

type ProjectNoteStore struct {
	db *sql.DB
}

func NewProjectNoteStore(db *sql.DB) *ProjectNoteStore {
	return &ProjectNoteStore{db: db}
}

const projectNoteColumns = "id, user_id, project_id, title, content, tags, task_id, resource_id, created_at, updated_at"

// List returns a project's notes, most recently edited first. A non-empty
// taskID restricts the result to notes linked to that task.
func (s *ProjectNoteStore) List(ctx context.Context, projectID string, taskID string) ([]ProjectNote, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(projectID) {
		return nil, ErrNotFound
	}

	query := "SELECT " + projectNoteColumns + " FROM project_notes WHERE user_id = $1 AND project_id = $2"
	args := []any{ownerID, projectID}
	if taskID = strings.TrimSpace(taskID); taskID != "" {
		if !ValidID(taskID) {
			return nil, fmt.Errorf("%w: invalid task_id", ErrInvalidInput)
		}
		args = append(args, taskID)
		query += fmt.Sprintf(" AND task_id = $%d", len(args))
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list project notes: %w", err)
	}
	defer rows.Close()

	notes := make([]ProjectNote, 0)
	for rows.Next() {
		note, err := scanProjectNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading project notes: %w", err)
	}
	return notes, nil
}

func (s *ProjectNoteStore) Create(ctx context.Context, projectID string, input ProjectNoteInput) (*ProjectNote, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(projectID) {
		return nil, ErrNotFound
	}
	taskID, resourceID, err := noteLinks(input)
	if err != nil {
		return nil, err
	}

	if err := ensureProjectOwned(ctx, s.db, ownerID, projectID); err != nil {
		return nil, err
	}

	note, err := scanProjectNote(s.db.QueryRowContext(ctx, `INSERT INTO project_notes (
		user_id, project_id, title, content, tags, task_id, resource_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING `+projectNoteColumns,
		ownerID,
		projectID,
		strings.TrimSpace(input.Title),
		nullableString(input.Content),
		pq.Array(normalizeStrings(input.Tags)),
		taskID,
		resourceID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create project note: %w", err)
	}
	return &note, nil
}

func (s *ProjectNoteStore) GetByID(ctx context.Context, id string) (*ProjectNote, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	note, err := scanProjectNote(s.db.QueryRowContext(ctx,
		"SELECT "+projectNoteColumns+" FROM project_notes WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project note: %w", err)
	}
	if note.UserID != ownerID {
		return nil, ErrForbidden
	}
	return &note, nil
}

func (s *ProjectNoteStore) Update(ctx context.Context, id string, input ProjectNoteInput) (*ProjectNote, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	taskID, resourceID, err := noteLinks(input)
	if err != nil {
		return nil, err
	}

	note, err := scanProjectNote(s.db.QueryRowContext(ctx, `UPDATE project_notes SET
		title = $1, content = $2, tags = $3, task_id = $4, resource_id = $5
	WHERE id = $6 AND user_id = $7
	RETURNING `+projectNoteColumns,
		strings.TrimSpace(input.Title),
		nullableString(input.Content),
		pq.Array(normalizeStrings(input.Tags)),
		taskID,
		resourceID,
		id,
		ownerID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update project note: %w", err)
	}
	return &note, nil
}

func (s *ProjectNoteStore) Delete(ctx context.Context, id string) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if !ValidID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM project_notes WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete project note: %w", err)
	}
	return requireRowsAffected(result, "delete")
}

func noteLinks(input ProjectNoteInput) (interface{}, interface{}, error) {
	taskID, err := nullableUUID(input.TaskID)
	if err != nil {
		return nil, nil, err
	}
	resourceID, err := nullableUUID(input.ResourceID)
	if err != nil {
		return nil, nil, err
	}
	return taskID, resourceID, nil
}

func scanProjectNote(scanner interface{ Scan(...any) error }) (ProjectNote, error) {
	var note ProjectNote
	var content, taskID, resourceID sql.NullString
	var tags pq.StringArray

	err := scanner.Scan(
		&note.ID,
		&note.UserID,
		&note.ProjectID,
		&note.Title,
		&content,
		&tags,
		&taskID,
		&resourceID,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err != nil {
		return note, err
	}

	note.Content = stringPtr(content)
	note.TaskID = stringPtr(taskID)
	note.ResourceID = stringPtr(resourceID)
	note.Tags = []string(tags)
	if note.Tags == nil {
		note.Tags = []string{}
	}
	return note, nil
}
