package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/pdf"
	"github.com/devpilot-hq/devpilot/internal/store"
)

const (
	defaultInvoicePageSize = 100
	maxInvoicePageSize     = 500
)

// InvoicesHandler serves invoices, previews and PDF exports.
type InvoicesHandler struct {
	Store    InvoiceRepository
	Service  InvoiceService
	Clients  ClientRepository
	Settings SettingsRepository
	Now      func() time.Time
}

type invoiceItemRequest struct {
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	Rate        decimal.Decimal `json:"rate"`
}

type createInvoiceRequest struct {
	ClientID  string               `json:"client_id"`
	ProjectID *string              `json:"project_id"`
	IssueDate *string              `json:"issue_date"`
	DueDate   *string              `json:"due_date"`
	Currency  string               `json:"currency"`
	TaxRate   decimal.Decimal      `json:"tax_rate"`
	Discount  decimal.Decimal      `json:"discount"`
	Notes     string               `json:"notes"`
	Items     []invoiceItemRequest `json:"items"`
}

type previewInvoiceRequest struct {
	TaxRate  decimal.Decimal      `json:"tax_rate"`
	Discount decimal.Decimal      `json:"discount"`
	Items    []invoiceItemRequest `json:"items"`
}

type invoiceIDRequest struct {
	InvoiceID string `json:"invoiceId"`
}

func (h *InvoicesHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// present replaces the stored status with the read-time status.
func (h *InvoicesHandler) present(inv store.Invoice) store.Invoice {
	inv.Status = billing.EffectiveStatus(inv, h.now())
	return inv
}

func draftItems(items []invoiceItemRequest) []billing.DraftItem {
	out := make([]billing.DraftItem, 0, len(items))
	for _, item := range items {
		out = append(out, billing.DraftItem{
			Description: strings.TrimSpace(item.Description),
			Qty:         item.Qty,
			Rate:        item.Rate,
		})
	}
	return out
}

// List returns invoices newest first. ?status=overdue selects sent invoices
// past their due date.
func (h *InvoicesHandler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !billing.ValidStatus(status) {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid status"})
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultInvoicePageSize, maxInvoicePageSize)
	if err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
		return
	}

	invoices, err := h.Store.List(r.Context(), store.InvoiceFilter{Status: status, AsOf: h.now(), Limit: limit})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	out := make([]store.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, h.present(inv))
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"invoices": out,
		"total":    len(out),
	})
}

func (h *InvoicesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "invoice")
	if !ok {
		return
	}
	inv, err := h.Store.GetByID(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, h.present(*inv))
}

// Create stores a draft invoice. Totals are always computed server-side.
func (h *InvoicesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input := billing.DraftInput{
		ClientID:  strings.TrimSpace(req.ClientID),
		ProjectID: trimmedPtr(req.ProjectID),
		Currency:  req.Currency,
		TaxRate:   req.TaxRate,
		Discount:  req.Discount,
		Notes:     strings.TrimSpace(req.Notes),
		Items:     draftItems(req.Items),
	}
	if input.ProjectID != nil && *input.ProjectID == "" {
		input.ProjectID = nil
	}
	if req.IssueDate != nil && strings.TrimSpace(*req.IssueDate) != "" {
		issued, err := parseDate(*req.IssueDate)
		if err != nil {
			sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid issue_date"})
			return
		}
		input.IssueDate = issued
	}
	due, err := parseOptionalDate(req.DueDate)
	if err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid due_date"})
		return
	}
	input.DueDate = due

	inv, err := h.Service.CreateDraft(r.Context(), input)
	if err != nil {
		if errors.Is(err, billing.ErrInvoiceNumberExhausted) {
			sendJSON(w, http.StatusConflict, errorResponse{Error: "could not allocate an invoice number, try again"})
			return
		}
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusCreated, h.present(*inv))
}

// Preview computes totals without storing anything.
func (h *InvoicesHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sendJSON(w, http.StatusOK, h.Service.PreviewTotals(draftItems(req.Items), req.TaxRate, req.Discount))
}

func (h *InvoicesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id", "invoice")
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PDF renders an invoice as an attachment and records its file name.
func (h *InvoicesHandler) PDF(w http.ResponseWriter, r *http.Request) {
	var req invoiceIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)
	if req.InvoiceID == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "Invoice ID is required"})
		return
	}

	inv, err := h.Store.GetByID(r.Context(), req.InvoiceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrForbidden) {
			sendJSON(w, http.StatusNotFound, errorResponse{Error: "Invoice not found"})
			return
		}
		handleStoreError(w, r, err)
		return
	}

	doc := pdf.Document{Invoice: *inv, Status: billing.EffectiveStatus(*inv, h.now())}
	if inv.ClientID != nil && h.Clients != nil {
		client, err := h.Clients.GetByID(r.Context(), *inv.ClientID)
		switch {
		case err == nil:
			doc.Client = client
		case errors.Is(err, store.ErrNotFound):
		default:
			handleStoreError(w, r, err)
			return
		}
	}
	if h.Settings != nil {
		settings, err := h.Settings.Get(r.Context())
		switch {
		case err == nil:
			doc.Settings = settings
		case errors.Is(err, store.ErrNotFound):
		default:
			handleStoreError(w, r, err)
			return
		}
	}

	var buf bytes.Buffer
	if err := pdf.RenderInvoice(&buf, doc); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("invoice_id", inv.ID).Msg("failed to render invoice pdf")
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to generate PDF"})
		return
	}

	filename := pdf.Filename(inv.InvoiceNumber)
	if err := h.Store.SetPDFPath(r.Context(), inv.ID, filename); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Str("invoice_id", inv.ID).Msg("failed to record pdf path")
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
