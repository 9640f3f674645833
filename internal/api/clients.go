package api

import (
	"net/http"
	"strings"

	"github.com/devpilot-hq/devpilot/internal/store"
)

// ClientsHandler serves the owner's client directory.
type ClientsHandler struct {
	Store ClientRepository
}

type clientRequest struct {
	Name                *string        `json:"name"`
	Email               *string        `json:"email"`
	Phone               *string        `json:"phone"`
	BillingAddress      *store.Address `json:"billing_address"`
	DefaultPaymentTerms *int           `json:"default_payment_terms"`
}

func (req clientRequest) applyTo(input *store.ClientInput) {
	if req.Name != nil {
		input.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		input.Email = trimmedPtr(req.Email)
	}
	if req.Phone != nil {
		input.Phone = trimmedPtr(req.Phone)
	}
	if req.BillingAddress != nil {
		input.BillingAddress = req.BillingAddress
	}
	if req.DefaultPaymentTerms != nil {
		input.DefaultPaymentTerms = req.DefaultPaymentTerms
	}
}

func validateClientInput(input store.ClientInput) string {
	if input.Name == "" {
		return "name is required"
	}
	if input.DefaultPaymentTerms != nil && *input.DefaultPaymentTerms < 0 {
		return "default_payment_terms must be zero or positive"
	}
	return ""
}

func (h *ClientsHandler) List(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.List(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"clients": clients,
		"total":   len(clients),
	})
}

func (h *ClientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "client")
	if !ok {
		return
	}
	client, err := h.Store.GetByID(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, client)
}

func (h *ClientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var input store.ClientInput
	req.applyTo(&input)
	if msg := validateClientInput(input); msg != "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	client, err := h.Store.Create(r.Context(), input)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusCreated, client)
}

// Patch merges the request into the stored client before saving.
func (h *ClientsHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "client")
	if !ok {
		return
	}
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	current, err := h.Store.GetByID(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	terms := current.DefaultPaymentTerms
	input := store.ClientInput{
		Name:                current.Name,
		Email:               current.Email,
		Phone:               current.Phone,
		BillingAddress:      current.BillingAddress,
		DefaultPaymentTerms: &terms,
	}
	req.applyTo(&input)
	if msg := validateClientInput(input); msg != "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	client, err := h.Store.Update(r.Context(), id, input)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, client)
}

func (h *ClientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "client")
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
