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

// Project statuses.
const (
	ProjectStatusActive    = "active"
	ProjectStatusArchived  = "archived"
	ProjectStatusCompleted = "completed"
)

// ValidProjectStatus reports whether status is a known project status.
func ValidProjectStatus(status string) bool {
	switch status {
	case ProjectStatusActive, ProjectStatusArchived, ProjectStatusCompleted:
		return true
	default:
		return false
	}
}

// Project represents a project entity.
type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ClientID    *string   `json:"client_id,omitempty"`
	ClientName  *string   `json:"client_name,omitempty"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	TechStack   []string  `json:"tech_stack"`
	RepoURL     *string   `json:"repo_url,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectStore provides owner-scoped access to projects.
type ProjectStore struct {
	db *sql.DB
}

// NewProjectStore creates a new ProjectStore with the given database connection.
func NewProjectStore(db *sql.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

// ProjectInput holds the writable fields of a project.
type ProjectInput struct {
	ClientID    *string
	Name        string
	Description *string
	TechStack   []string
	RepoURL     *string
	Status      string
}

const projectSelectColumns = `p.id, p.user_id, p.client_id, c.name, p.name, p.description,
	p.tech_stack, p.repo_url, p.status, p.created_at, p.updated_at`

const projectFrom = " FROM projects p LEFT JOIN clients c ON c.id = p.client_id AND c.user_id = p.user_id"

// GetByID retrieves one of the owner's projects.
func (s *ProjectStore) GetByID(ctx context.Context, id string) (*Project, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	project, err := scanProject(s.db.QueryRowContext(ctx,
		"SELECT "+projectSelectColumns+projectFrom+" WHERE p.id = $1",
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	// Double-check ownership at app layer
	if project.UserID != ownerID {
		return nil, ErrForbidden
	}

	return &project, nil
}

// List returns the owner's projects, newest first, optionally filtered by status.
func (s *ProjectStore) List(ctx context.Context, status string) ([]Project, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + projectSelectColumns + projectFrom + " WHERE p.user_id = $1"
	args := []interface{}{ownerID}
	if status = strings.TrimSpace(status); status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND p.status = $%d", len(args))
	}
	query += " ORDER BY p.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading projects: %w", err)
	}

	return projects, nil
}

// Create inserts a project for the owner.
func (s *ProjectStore) Create(ctx context.Context, input ProjectInput) (*Project, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	clientID, err := nullableUUID(input.ClientID)
	if err != nil {
		return nil, err
	}
	status := input.Status
	if status == "" {
		status = ProjectStatusActive
	}

	var id string
	err = s.db.QueryRowContext(ctx, `INSERT INTO projects (
		user_id, client_id, name, description, tech_stack, repo_url, status
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`,
		ownerID,
		clientID,
		strings.TrimSpace(input.Name),
		nullableString(input.Description),
		pq.Array(normalizeStrings(input.TechStack)),
		nullableString(input.RepoURL),
		status,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return s.GetByID(ctx, id)
}

// Update replaces the writable fields of one of the owner's projects.
func (s *ProjectStore) Update(ctx context.Context, id string, input ProjectInput) (*Project, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	clientID, err := nullableUUID(input.ClientID)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE projects SET
		client_id = $1, name = $2, description = $3, tech_stack = $4, repo_url = $5, status = $6
	WHERE id = $7 AND user_id = $8`,
		clientID,
		strings.TrimSpace(input.Name),
		nullableString(input.Description),
		pq.Array(normalizeStrings(input.TechStack)),
		nullableString(input.RepoURL),
		input.Status,
		id,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if err := requireRowsAffected(result, "update"); err != nil {
		return nil, err
	}

	return s.GetByID(ctx, id)
}

// Delete removes one of the owner's projects along with its tasks, notes,
// resources and chat.
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if !ValidID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireRowsAffected(result, "delete")
}

func scanProject(scanner interface{ Scan(...any) error }) (Project, error) {
	var project Project
	var clientID, clientName, description, repoURL sql.NullString
	var techStack pq.StringArray

	err := scanner.Scan(
		&project.ID,
		&project.UserID,
		&clientID,
		&clientName,
		&project.Name,
		&description,
		&techStack,
		&repoURL,
		&project.Status,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return project, err
	}

	project.ClientID = stringPtr(clientID)
	project.ClientName = stringPtr(clientName)
	project.Description = stringPtr(description)
	project.RepoURL = stringPtr(repoURL)
	project.TechStack = []string(techStack)
	if project.TechStack == nil {
		project.TechStack = []string{}
	}

	return project, nil
}
