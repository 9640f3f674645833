package api

import (
	"net/http"
	"strings"

	"github.com/devpilot-hq/devpilot/internal/store"
)

// ResourcesHandler serves file references attached to projects.
type ResourcesHandler struct {
	Store ResourceRepository
}

type createResourceRequest struct {
	Name        string  `json:"name"`
	FileType    string  `json:"file_type"`
	FileSize    *int64  `json:"file_size"`
	FileURL     *string `json:"file_url"`
	StoragePath *string `json:"storage_path"`
	TaskID      *string `json:"task_id"`
}

func (h *ResourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	resources, err := h.Store.List(r.Context(), projectID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"resources": resources,
		"total":     len(resources),
	})
}

func (h *ResourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	var req createResourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.FileType = strings.TrimSpace(req.FileType)
	if req.Name == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}
	if req.FileType == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "file_type is required"})
		return
	}
	if req.FileSize != nil && *req.FileSize < 0 {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "file_size must be zero or positive"})
		return
	}

	resource, err := h.Store.Create(r.Context(), projectID, store.CreateProjectResourceInput{
		Name:        req.Name,
		FileType:    req.FileType,
		FileSize:    req.FileSize,
		FileURL:     emptyToNil(req.FileURL),
		StoragePath: emptyToNil(req.StoragePath),
		TaskID:      emptyToNil(req.TaskID),
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusCreated, resource)
}

func (h *ResourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "resource")
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
