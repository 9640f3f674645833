package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ProjectResource is metadata about a file kept elsewhere.
type ProjectResource struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	FileType    string    `json:"file_type"`
	FileSize    *int64    `json:"file_size,omitempty"`
	FileURL     *string   `json:"file_url,omitempty"`
	StoragePath *string   `json:"storage_path,omitempty"`
	TaskID      *string   `json:"task_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateProjectResourceInput struct {
	Name        string
	FileType    string
	FileSize    *int64
	FileURL     *string
	StoragePath *string
	TaskID      *string
}

type ProjectResourceStore struct {
	db *sql.DB
}

func NewProjectResourceStore(db *sql.DB) *ProjectResourceStore {
	return &ProjectResourceStore{db: db}
}

const projectResourceColumns = "id, user_id, project_id, name, file_type, file_size, file_url, storage_path, task_id, created_at, updated_at"

func (s *ProjectResourceStore) List(ctx context.Context, projectID string) ([]ProjectResource, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(projectID) {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+projectResourceColumns+" FROM project_resources WHERE user_id = $1 AND project_id = $2 ORDER BY created_at DESC",
		ownerID, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list project resources: %w", err)
	}
	defer rows.Close()

	resources := make([]ProjectResource, 0)
	for rows.Next() {
		resource, err := scanProjectResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project resource: %w", err)
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading project resources: %w", err)
	}
	return resources, nil
}

func (s *ProjectResourceStore) Create(ctx context.Context, projectID string, input CreateProjectResourceInput) (*ProjectResource, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(projectID) {
		return nil, ErrNotFound
	}
	if input.FileSize != nil && *input.FileSize < 0 {
		return nil, fmt.Errorf("%w: file_size must be non-negative", ErrInvalidInput)
	}
	taskID, err := nullableUUID(input.TaskID)
	if err != nil {
		return nil, err
	}

	if err := ensureProjectOwned(ctx, s.db, ownerID, projectID); err != nil {
		return nil, err
	}

	var fileSize interface{}
	if input.FileSize != nil {
		fileSize = *input.FileSize
	}

	resource, err := scanProjectResource(s.db.QueryRowContext(ctx, `INSERT INTO project_resources (
		user_id, project_id, name, file_type, file_size, file_url, storage_path, task_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING `+projectResourceColumns,
		ownerID,
		projectID,
		strings.TrimSpace(input.Name),
		strings.TrimSpace(input.FileType),
		fileSize,
		nullableString(input.FileURL),
		nullableString(input.StoragePath),
		taskID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create project resource: %w", err)
	}
	return &resource, nil
}

func (s *ProjectResourceStore) Delete(ctx context.Context, id string) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if !ValidID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM project_resources WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete project resource: %w", err)
	}
	return requireRowsAffected(result, "delete")
}

func scanProjectResource(scanner interface{ Scan(...any) error }) (ProjectResource, error) {
	var resource ProjectResource
	var fileSize sql.NullInt64
	var fileURL, storagePath, taskID sql.NullString

	err := scanner.Scan(
		&resource.ID,
		&resource.UserID,
		&resource.ProjectID,
		&resource.Name,
		&resource.FileType,
		&fileSize,
		&fileURL,
		&storagePath,
		&taskID,
		&resource.CreatedAt,
		&resource.UpdatedAt,
	)
	if err != nil {
		return resource, err
	}

	if fileSize.Valid {
		size := fileSize.Int64
		resource.FileSize = &size
	}
	resource.FileURL = stringPtr(fileURL)
	resource.StoragePath = stringPtr(storagePath)
	resource.TaskID = stringPtr(taskID)
	return resource, nil
}
