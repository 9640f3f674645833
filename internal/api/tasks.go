package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/devpilot-hq/devpilot/internal/kanban"
	"github.com/devpilot-hq/devpilot/internal/middleware"
	"github.com/devpilot-hq/devpilot/internal/store"
)

// TasksHandler serves project tasks and the kanban board.
type TasksHandler struct {
	Projects ProjectRepository
	Tasks    TaskRepository
	Notifier ChangeNotifier
}

type createTaskRequest struct {
	Title         string           `json:"title"`
	Description   *string          `json:"description"`
	Status        string           `json:"status"`
	EstimateHours *decimal.Decimal `json:"estimate_hours"`
}

type updateTaskRequest struct {
	Title         *string          `json:"title"`
	Description   *string          `json:"description"`
	EstimateHours *decimal.Decimal `json:"estimate_hours"`
	Status        *string          `json:"status"`
}

type moveTaskRequest struct {
	Column string `json:"column"`
}

type moveTaskResponse struct {
	Task   *store.Task   `json:"task"`
	Column kanban.Column `json:"column"`
}

func (h *TasksHandler) notifier() ChangeNotifier {
	if h.Notifier == nil {
		return noopNotifier{}
	}
	return h.Notifier
}

func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	if _, err := h.Projects.GetByID(r.Context(), projectID); err != nil {
		handleStoreError(w, r, err)
		return
	}
	tasks, err := h.Tasks.ListByProject(r.Context(), projectID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"total": len(tasks),
	})
}

// Board returns the project's tasks in the three kanban columns.
func (h *TasksHandler) Board(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	if _, err := h.Projects.GetByID(r.Context(), projectID); err != nil {
		handleStoreError(w, r, err)
		return
	}
	tasks, err := h.Tasks.ListByProject(r.Context(), projectID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, kanban.GroupBoard(tasks))
}

func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "title is required"})
		return
	}
	status := string(kanban.StatusTodo)
	if strings.TrimSpace(req.Status) != "" {
		parsed, err := validTaskStatus(req.Status)
		if err != nil {
			sendJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		status = parsed
	}
	if req.EstimateHours != nil && req.EstimateHours.IsNegative() {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "estimate_hours must be zero or positive"})
		return
	}

	task, err := h.Tasks.Create(r.Context(), store.CreateTaskInput{
		ProjectID:     projectID,
		Title:         req.Title,
		Description:   trimmedPtr(req.Description),
		Status:        status,
		EstimateHours: req.EstimateHours,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	h.notifier().TaskCreated(middleware.OwnerFromContext(r.Context()), task.ProjectID, task.ID)
	sendJSON(w, http.StatusCreated, task)
}

// Patch edits task fields. A status in the body is applied as a move.
func (h *TasksHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "task")
	if !ok {
		return
	}
	var req updateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var status string
	if req.Status != nil {
		parsed, err := validTaskStatus(*req.Status)
		if err != nil {
			sendJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		status = parsed
	}
	if req.EstimateHours != nil && req.EstimateHours.IsNegative() {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "estimate_hours must be zero or positive"})
		return
	}

	task, err := h.Tasks.GetByID(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	if req.Title != nil || req.Description != nil || req.EstimateHours != nil {
		input := store.UpdateTaskInput{
			Title:         task.Title,
			Description:   task.Description,
			EstimateHours: task.EstimateHours,
		}
		if req.Title != nil {
			input.Title = strings.TrimSpace(*req.Title)
			if input.Title == "" {
				sendJSON(w, http.StatusBadRequest, errorResponse{Error: "title is required"})
				return
			}
		}
		if req.Description != nil {
			input.Description = trimmedPtr(req.Description)
		}
		if req.EstimateHours != nil {
			input.EstimateHours = req.EstimateHours
		}
		if task, err = h.Tasks.Update(r.Context(), id, input); err != nil {
			handleStoreError(w, r, err)
			return
		}
	}

	if status != "" && status != task.Status {
		if task, err = h.Tasks.Move(r.Context(), id, status); err != nil {
			handleStoreError(w, r, err)
			return
		}
		h.notifier().TaskMoved(middleware.OwnerFromContext(r.Context()), task.ProjectID, task.ID)
	}

	sendJSON(w, http.StatusOK, task)
}

// Move drops a task into a board column and persists the column's status.
func (h *TasksHandler) Move(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "task id is required"})
		return
	}
	var req moveTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	column, err := kanban.ParseColumn(req.Column)
	if err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	task, err := h.Tasks.Move(r.Context(), id, string(kanban.Move(column)))
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	h.notifier().TaskMoved(middleware.OwnerFromContext(r.Context()), task.ProjectID, task.ID)
	sendJSON(w, http.StatusOK, moveTaskResponse{Task: task, Column: column})
}

func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "task")
	if !ok {
		return
	}
	if err := h.Tasks.Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
