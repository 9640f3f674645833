package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/kanban"
	"github.com/devpilot-hq/devpilot/internal/store"
)

const maxRequestBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return false
	}
	return true
}

// urlID returns a trimmed path parameter, answering 400 when it is missing.
func urlID(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, name))
	if id == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: label + " id is required"})
		return "", false
	}
	return id, true
}

// handleStoreError maps domain errors to HTTP responses. Unclassified errors
// are logged and answered with a generic message.
func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNoOwner):
		sendJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
	case errors.Is(err, store.ErrForbidden):
		sendJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, store.ErrNotFound):
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, store.ErrDuplicate):
		sendJSON(w, http.StatusConflict, errorResponse{Error: "already exists"})
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, billing.ErrClientRequired),
		errors.Is(err, billing.ErrItemsRequired),
		errors.Is(err, billing.ErrInvalidItem):
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &maxBytes):
		sendJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
	default:
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func parseLimit(value string, defaultValue, maxValue int) (int, error) {
	if strings.TrimSpace(value) == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 || parsed > maxValue {
		return 0, fmt.Errorf("invalid limit")
	}
	return parsed, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return t, nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := parseDate(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func validTaskStatus(raw string) (string, error) {
	status, err := kanban.ParseStatus(raw)
	if err != nil {
		return "", err
	}
	return string(status), nil
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

type cursorToken struct {
	CreatedAt time.Time
	ID        string
}

func parseCursor(value string) (*cursorToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, err
	}
	return &cursorToken{CreatedAt: createdAt, ID: parts[1]}, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	return fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), id)
}
