package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type ProjectChatMessage struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ProjectID  string    `json:"project_id"`
	Message    string    `json:"message"`
	ResourceID *string   `json:"resource_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateProjectChatMessageInput struct {
	ProjectID  string
	Message    string
	ResourceID *string
}

type ProjectChatStore struct {
	db *sql.DB
}

func NewProjectChatStore(db *sql.DB) *ProjectChatStore {
	return &ProjectChatStore{db: db}
}

const projectChatColumns = `
	id,
	user_id,
	project_id,
	message,
	resource_id,
	created_at
`

func (s *ProjectChatStore) Create(ctx context.Context, input CreateProjectChatMessageInput) (*ProjectChatMessage, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	projectID := strings.TrimSpace(input.ProjectID)
	if !ValidID(projectID) {
		return nil, fmt.Errorf("%w: invalid project_id", ErrInvalidInput)
	}
	body := strings.TrimSpace(input.Message)
	if body == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	resourceID, err := nullableUUID(input.ResourceID)
	if err != nil {
		return nil, err
	}

	if err := ensureProjectOwned(ctx, s.db, ownerID, projectID); err != nil {
		return nil, err
	}

	message, err := scanProjectChatMessage(s.db.QueryRowContext(
		ctx,
		`INSERT INTO project_chat_messages (
			user_id,
			project_id,
			message,
			resource_id
		) VALUES ($1, $2, $3, $4)
		RETURNING `+projectChatColumns,
		ownerID,
		projectID,
		body,
		resourceID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create project chat message: %w", err)
	}
	return &message, nil
}

// List returns up to limit messages older than the cursor, newest first, and
// whether more remain.
func (s *ProjectChatStore) List(
	ctx context.Context,
	projectID string,
	limit int,
	beforeCreatedAt *time.Time,
	beforeID *string,
) ([]ProjectChatMessage, bool, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, false, err
	}

	projectID = strings.TrimSpace(projectID)
	if !ValidID(projectID) {
		return nil, false, fmt.Errorf("%w: invalid project_id", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	if err := ensureProjectOwned(ctx, s.db, ownerID, projectID); err != nil {
		return nil, false, err
	}

	where := `WHERE user_id = $1 AND project_id = $2`
	args := []any{ownerID, projectID}
	if beforeCreatedAt != nil && beforeID != nil && strings.TrimSpace(*beforeID) != "" {
		where += ` AND (created_at, id) < ($3, $4)`
		args = append(args, beforeCreatedAt.UTC(), strings.TrimSpace(*beforeID))
	}
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+projectChatColumns+` FROM project_chat_messages
		 `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT $`+fmt.Sprint(len(args)),
		args...,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list project chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]ProjectChatMessage, 0, limit+1)
	for rows.Next() {
		message, err := scanProjectChatMessage(rows)
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan project chat message: %w", err)
		}
		if message.UserID != ownerID {
			return nil, false, ErrForbidden
		}
		out = append(out, message)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed reading project chat rows: %w", err)
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

func ensureProjectOwned(
	ctx context.Context,
	q interface {
		QueryRowContext(context.Context, string, ...any) *sql.Row
	},
	ownerID, projectID string,
) error {
	var projectOwnerID string
	err := q.QueryRowContext(ctx, `SELECT user_id FROM projects WHERE id = $1`, projectID).Scan(&projectOwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to verify project ownership: %w", err)
	}
	if projectOwnerID != ownerID {
		return ErrForbidden
	}
	return nil
}

func scanProjectChatMessage(scanner interface{ Scan(dest ...any) error }) (ProjectChatMessage, error) {
	var message ProjectChatMessage
	var resourceID sql.NullString
	err := scanner.Scan(
		&message.ID,
		&message.UserID,
		&message.ProjectID,
		&message.Message,
		&resourceID,
		&message.CreatedAt,
	)
	if err != nil {
		return message, err
	}
	message.ResourceID = stringPtr(resourceID)
	return message, nil
}
