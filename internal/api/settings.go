package api

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/devpilot-hq/devpilot/internal/store"
)

// SettingsHandler reads and writes the owner's company settings.
type SettingsHandler struct {
	Store SettingsRepository
}

type settingsRequest struct {
	CompanyName       *string          `json:"company_name"`
	CompanyLogo       *string          `json:"company_logo"`
	DefaultHourlyRate *decimal.Decimal `json:"default_hourly_rate"`
	InvoiceFooter     *string          `json:"invoice_footer"`
	BankName          *string          `json:"bank_name"`
	AccountNumber     *string          `json:"account_number"`
	AccountHolder     *string          `json:"account_holder"`
	AccountType       *string          `json:"account_type"`
	IBAN              *string          `json:"iban"`
}

// Get returns the settings, or an empty object before the first save.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.Get(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendJSON(w, http.StatusOK, map[string]interface{}{})
			return
		}
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, settings)
}

// Put replaces the settings.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input := store.CompanySettingsInput{
		CompanyName:   trimmedPtr(req.CompanyName),
		CompanyLogo:   trimmedPtr(req.CompanyLogo),
		InvoiceFooter: trimmedPtr(req.InvoiceFooter),
		BankName:      trimmedPtr(req.BankName),
		AccountNumber: trimmedPtr(req.AccountNumber),
		AccountHolder: trimmedPtr(req.AccountHolder),
		AccountType:   trimmedPtr(req.AccountType),
		IBAN:          trimmedPtr(req.IBAN),
	}
	if req.DefaultHourlyRate != nil {
		if req.DefaultHourlyRate.IsNegative() {
			sendJSON(w, http.StatusBadRequest, errorResponse{Error: "default_hourly_rate must be zero or positive"})
			return
		}
		input.DefaultHourlyRate = *req.DefaultHourlyRate
	}

	settings, err := h.Store.Upsert(r.Context(), input)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, settings)
}
