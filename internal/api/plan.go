package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/devpilot-hq/devpilot/internal/planner"
)

// PlanHandler turns a project idea into a structured plan.
type PlanHandler struct {
	Planner PlanGenerator
}

type planRequest struct {
	Idea string `json:"idea"`
}

// Create answers with the model's plan JSON as returned.
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Idea) == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "Project idea is required"})
		return
	}
	if h.Planner == nil || !h.Planner.Configured() {
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "OpenRouter API key not configured"})
		return
	}

	result, err := h.Planner.GeneratePlan(r.Context(), req.Idea)
	if err != nil {
		if errors.Is(err, planner.ErrIdeaRequired) {
			sendJSON(w, http.StatusBadRequest, errorResponse{Error: "Project idea is required"})
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to generate project plan")
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to generate project plan"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Raw)
}
