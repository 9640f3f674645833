package api

import (
	"net/http"
	"strings"

	"github.com/devpilot-hq/devpilot/internal/store"
)

// ProjectsHandler handles project-related API requests.
type ProjectsHandler struct {
	Store ProjectRepository
}

type projectRequest struct {
	ClientID    *string   `json:"client_id"`
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	TechStack   *[]string `json:"tech_stack"`
	RepoURL     *string   `json:"repo_url"`
	Status      *string   `json:"status"`
}

func (req projectRequest) applyTo(input *store.ProjectInput) {
	if req.ClientID != nil {
		input.ClientID = trimmedPtr(req.ClientID)
		if *input.ClientID == "" {
			input.ClientID = nil
		}
	}
	if req.Name != nil {
		input.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		input.Description = trimmedPtr(req.Description)
	}
	if req.TechStack != nil {
		input.TechStack = *req.TechStack
	}
	if req.RepoURL != nil {
		input.RepoURL = trimmedPtr(req.RepoURL)
	}
	if req.Status != nil {
		input.Status = strings.ToLower(strings.TrimSpace(*req.Status))
	}
}

func validateProjectInput(input store.ProjectInput) string {
	if input.Name == "" {
		return "name is required"
	}
	if input.Status != "" && !store.ValidProjectStatus(input.Status) {
		return "invalid status"
	}
	return ""
}

// List returns the owner's projects, optionally filtered by ?status=.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !store.ValidProjectStatus(status) {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid status"})
		return
	}

	projects, err := h.Store.List(r.Context(), status)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"total":    len(projects),
	})
}

// Get returns a single project by ID.
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	project, err := h.Store.GetByID(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, project)
}

func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var input store.ProjectInput
	req.applyTo(&input)
	if msg := validateProjectInput(input); msg != "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	project, err := h.Store.Create(r.Context(), input)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusCreated, project)
}

func (h *ProjectsHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	current, err := h.Store.GetByID(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	input := store.ProjectInput{
		ClientID:    current.ClientID,
		Name:        current.Name,
		Description: current.Description,
		TechStack:   current.TechStack,
		RepoURL:     current.RepoURL,
		Status:      current.Status,
	}
	req.applyTo(&input)
	if input.Status == "" {
		input.Status = current.Status
	}
	if msg := validateProjectInput(input); msg != "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	project, err := h.Store.Update(r.Context(), id, input)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, project)
}

func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
