package api

import (
	"net/http"
	"strings"

	"github.com/devpilot-hq/devpilot/internal/middleware"
	"github.com/devpilot-hq/devpilot/internal/store"
)

// NotesHandler serves project notes.
type NotesHandler struct {
	Store    NoteRepository
	Notifier ChangeNotifier
}

type noteRequest struct {
	Title      *string   `json:"title"`
	Content    *string   `json:"content"`
	Tags       *[]string `json:"tags"`
	TaskID     *string   `json:"task_id"`
	ResourceID *string   `json:"resource_id"`
}

func (req noteRequest) applyTo(input *store.ProjectNoteInput) {
	if req.Title != nil {
		input.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		input.Content = req.Content
	}
	if req.Tags != nil {
		input.Tags = *req.Tags
	}
	if req.TaskID != nil {
		input.TaskID = emptyToNil(req.TaskID)
	}
	if req.ResourceID != nil {
		input.ResourceID = emptyToNil(req.ResourceID)
	}
}

func emptyToNil(s *string) *string {
	v := trimmedPtr(s)
	if v == nil || *v == "" {
		return nil
	}
	return v
}

func (h *NotesHandler) notify(r *http.Request, note *store.ProjectNote) {
	if h.Notifier != nil {
		h.Notifier.NoteChanged(middleware.OwnerFromContext(r.Context()), note.ProjectID, note.ID)
	}
}

// List returns a project's notes, optionally only those linked to ?task_id=.
func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	notes, err := h.Store.List(r.Context(), projectID, strings.TrimSpace(r.URL.Query().Get("task_id")))
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"notes": notes,
		"total": len(notes),
	})
}

func (h *NotesHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var input store.ProjectNoteInput
	req.applyTo(&input)
	if input.Title == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "title is required"})
		return
	}

	note, err := h.Store.Create(r.Context(), projectID, input)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	h.notify(r, note)
	sendJSON(w, http.StatusCreated, note)
}

func (h *NotesHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "note")
	if !ok {
		return
	}
	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	current, err := h.Store.GetByID(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	input := store.ProjectNoteInput{
		Title:      current.Title,
		Content:    current.Content,
		Tags:       current.Tags,
		TaskID:     current.TaskID,
		ResourceID: current.ResourceID,
	}
	req.applyTo(&input)
	if input.Title == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "title is required"})
		return
	}

	note, err := h.Store.Update(r.Context(), id, input)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	h.notify(r, note)
	sendJSON(w, http.StatusOK, note)
}

func (h *NotesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "note")
	if !ok {
		return
	}
	note, err := h.Store.GetByID(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	h.notify(r, note)
	w.WriteHeader(http.StatusNoContent)
}
