package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/store"
)

// PaymentsHandler opens hosted checkout sessions for invoices.
type PaymentsHandler struct {
	Service InvoiceService
}

type checkoutResponse struct {
	URL string `json:"url"`
}

func (h *PaymentsHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req invoiceIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)
	if req.InvoiceID == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "Invoice ID is required"})
		return
	}

	url, err := h.Service.RequestPayment(r.Context(), req.InvoiceID)
	switch {
	case err == nil:
		sendJSON(w, http.StatusOK, checkoutResponse{URL: url})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrForbidden):
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "Invoice not found"})
	case errors.Is(err, billing.ErrPaymentProcessor):
		log.Ctx(r.Context()).Error().Err(err).Str("invoice_id", req.InvoiceID).Msg("payment processor rejected checkout")
		sendJSON(w, http.StatusBadGateway, errorResponse{Error: "Failed to create payment link"})
	default:
		handleStoreError(w, r, err)
	}
}
