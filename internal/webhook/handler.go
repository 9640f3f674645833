package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxPayloadBytes caps the webhook body; Stripe events are far smaller.
const maxPayloadBytes = 1 << 20

// Handler serves the processor webhook endpoint.
type Handler struct {
	reconciler *Reconciler
}

func NewHandler(reconciler *Reconciler) *Handler {
	return &Handler{reconciler: reconciler}
}

// ServeHTTP reads the raw body, reconciles it and writes {"received":true}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid payload"})
		return
	}

	_, err = h.reconciler.Handle(r.Context(), payload, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
	case errors.Is(err, ErrMissingSignature):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No signature provided"})
	case errors.Is(err, ErrInvalidSignature):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid signature"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Webhook processing failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
