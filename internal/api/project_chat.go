package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/devpilot-hq/devpilot/internal/middleware"
	"github.com/devpilot-hq/devpilot/internal/store"
)

const (
	defaultProjectChatPageSize = 50
	maxProjectChatPageSize     = 200
)

type ProjectChatHandler struct {
	Store    ChatRepository
	Notifier ChangeNotifier
}

type createProjectChatMessageRequest struct {
	Message    string  `json:"message"`
	ResourceID *string `json:"resource_id,omitempty"`
}

type projectChatListResponse struct {
	Messages   []store.ProjectChatMessage `json:"messages"`
	HasMore    bool                       `json:"has_more"`
	NextCursor string                     `json:"next_cursor,omitempty"`
}

func (h *ProjectChatHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultProjectChatPageSize, maxProjectChatPageSize)
	if err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
		return
	}
	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid cursor"})
		return
	}

	var beforeCreatedAt *time.Time
	var beforeID *string
	if cursor != nil {
		beforeCreatedAt = &cursor.CreatedAt
		beforeID = &cursor.ID
	}

	messages, hasMore, err := h.Store.List(r.Context(), projectID, limit, beforeCreatedAt, beforeID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if messages == nil {
		messages = []store.ProjectChatMessage{}
	}

	nextCursor := ""
	if hasMore && len(messages) > 0 {
		oldest := messages[len(messages)-1]
		nextCursor = encodeCursor(oldest.CreatedAt, oldest.ID)
	}

	sendJSON(w, http.StatusOK, projectChatListResponse{
		Messages:   messages,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	})
}

func (h *ProjectChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := urlID(w, r, "id", "project")
	if !ok {
		return
	}
	var req createProjectChatMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	message, err := h.Store.Create(r.Context(), store.CreateProjectChatMessageInput{
		ProjectID:  projectID,
		Message:    req.Message,
		ResourceID: emptyToNil(req.ResourceID),
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	if h.Notifier != nil {
		h.Notifier.ChatMessageCreated(middleware.OwnerFromContext(r.Context()), message.ProjectID, message.ID)
	}
	sendJSON(w, http.StatusCreated, message)
}
