package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/store"
)

func datePtr(t time.Time) *time.Time { return &t }

func TestInvoiceListReportsOverdue(t *testing.T) {
	env := newTestEnv(t)
	past := datePtr(fixedNow.AddDate(0, 0, -3))
	future := datePtr(fixedNow.AddDate(0, 0, 10))
	env.invoices.add(store.Invoice{UserID: ownerA, InvoiceNumber: "DP-2406-1001", Status: billing.StatusSent, DueDate: past})
	env.invoices.add(store.Invoice{UserID: ownerA, InvoiceNumber: "DP-2406-1002", Status: billing.StatusSent, DueDate: future})
	env.invoices.add(store.Invoice{UserID: ownerA, InvoiceNumber: "DP-2406-1003", Status: billing.StatusPaid, DueDate: past})
	env.invoices.add(store.Invoice{UserID: ownerB, InvoiceNumber: "DP-2406-1004", Status: billing.StatusSent, DueDate: past})

	type listResponse struct {
		Invoices []store.Invoice `json:"invoices"`
		Total    int             `json:"total"`
	}

	rec := env.do(t, ownerA, http.MethodGet, "/api/invoices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all listResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	require.Equal(t, 3, all.Total)
	statuses := map[string]string{}
	for _, inv := range all.Invoices {
		statuses[inv.InvoiceNumber] = inv.Status
	}
	assert.Equal(t, map[string]string{
		"DP-2406-1001": billing.StatusOverdue,
		"DP-2406-1002": billing.StatusSent,
		"DP-2406-1003": billing.StatusPaid,
	}, statuses)

	rec = env.do(t, ownerA, http.MethodGet, "/api/invoices?status=overdue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var overdue listResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&overdue))
	require.Len(t, overdue.Invoices, 1)
	assert.Equal(t, "DP-2406-1001", overdue.Invoices[0].InvoiceNumber)

	rec = env.do(t, ownerA, http.MethodGet, "/api/invoices?status=sent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sent listResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sent))
	require.Len(t, sent.Invoices, 1)
	assert.Equal(t, "DP-2406-1002", sent.Invoices[0].InvoiceNumber)
}

func TestInvoiceListLimitCountsFilteredInvoices(t *testing.T) {
	env := newTestEnv(t)
	env.invoices.add(store.Invoice{UserID: ownerA, InvoiceNumber: "DP-2406-2001", Status: billing.StatusSent, DueDate: datePtr(fixedNow.AddDate(0, 0, -30))})
	env.invoices.add(store.Invoice{UserID: ownerA, InvoiceNumber: "DP-2406-2002", Status: billing.StatusSent, DueDate: datePtr(fixedNow.AddDate(0, 0, 5))})
	env.invoices.add(store.Invoice{UserID: ownerA, InvoiceNumber: "DP-2406-2003", Status: billing.StatusSent})

	tests := []struct {
		query string
		want  []string
	}{
		{query: "?status=overdue&limit=1", want: []string{"DP-2406-2001"}},
		{query: "?status=sent&limit=2", want: []string{"DP-2406-2003", "DP-2406-2002"}},
	}

	for _, tt := range tests {
		rec := env.do(t, ownerA, http.MethodGet, "/api/invoices"+tt.query, "")
		require.Equal(t, http.StatusOK, rec.Code, tt.query)
		var body struct {
			Invoices []store.Invoice `json:"invoices"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		got := make([]string, 0, len(body.Invoices))
		for _, inv := range body.Invoices {
			got = append(got, inv.InvoiceNumber)
		}
		assert.Equal(t, tt.want, got, tt.query)
	}
}

func TestInvoiceListRejectsBadQuery(t *testing.T) {
	env := newTestEnv(t)
	for _, query := range []string{"?status=void", "?limit=0", "?limit=501", "?limit=abc"} {
		rec := env.do(t, ownerA, http.MethodGet, "/api/invoices"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestGetInvoiceShowsEffectiveStatus(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoices.add(store.Invoice{
		UserID:        ownerA,
		InvoiceNumber: "DP-2406-1001",
		Status:        billing.StatusSent,
		DueDate:       datePtr(fixedNow.AddDate(0, 0, -1)),
	})

	rec := env.do(t, ownerA, http.MethodGet, "/api/invoices/"+inv.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got store.Invoice
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, billing.StatusOverdue, got.Status)

	stored, err := env.invoices.GetByID(ownerCtx(ownerA), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusSent, stored.Status)

	rec = env.do(t, ownerB, http.MethodGet, "/api/invoices/"+inv.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateInvoiceDraft(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, ownerA, http.MethodPost, "/api/invoices", `{
		"client_id": "c1",
		"issue_date": "2024-06-01",
		"due_date": "2024-07-01",
		"tax_rate": "8",
		"discount": "0",
		"items": [
			{"description": "Design", "qty": "10", "rate": "80"},
			{"description": "Build", "qty": "20", "rate": "50"}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var inv store.Invoice
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&inv))
	assert.Equal(t, billing.StatusDraft, inv.Status)
	assert.True(t, inv.Subtotal.Equal(decimal.NewFromInt(1800)), inv.Subtotal.String())
	assert.True(t, inv.Tax.Equal(decimal.NewFromInt(144)), inv.Tax.String())
	assert.True(t, inv.Total.Equal(decimal.NewFromInt(1944)), inv.Total.String())

	draft := env.billing.lastDraft
	assert.Equal(t, "c1", draft.ClientID)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), draft.IssueDate)
	require.NotNil(t, draft.DueDate)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), *draft.DueDate)
	require.Len(t, draft.Items, 2)
	assert.Equal(t, "Design", draft.Items[0].Description)
}

func TestCreateInvoiceErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "bad issue date", body: `{"client_id":"c1","issue_date":"June 1st"}`, want: http.StatusBadRequest},
		{name: "bad due date", body: `{"client_id":"c1","due_date":"soon"}`, want: http.StatusBadRequest},
		{name: "client required", body: `{}`, err: billing.ErrClientRequired, want: http.StatusBadRequest},
		{name: "items required", body: `{"client_id":"c1"}`, err: billing.ErrItemsRequired, want: http.StatusBadRequest},
		{name: "number exhausted", body: `{"client_id":"c1"}`, err: billing.ErrInvoiceNumberExhausted, want: http.StatusConflict},
		{name: "unexpected", body: `{"client_id":"c1"}`, err: errors.New("db down"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.billing.createErr = tt.err
			rec := env.do(t, ownerA, http.MethodPost, "/api/invoices", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPreviewInvoiceTotals(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, ownerA, http.MethodPost, "/api/invoices/preview", `{
		"tax_rate": "10",
		"discount": "5",
		"items": [{"description": "Hosting", "qty": "3", "rate": "19.99"}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var totals billing.Totals
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&totals))
	assert.Equal(t, "59.97", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "6.00", totals.Tax.StringFixed(2))
	assert.Equal(t, "60.97", totals.Total.StringFixed(2))
	assert.Empty(t, env.invoices.invoices)
}

func TestDeleteInvoice(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoices.add(store.Invoice{UserID: ownerA, InvoiceNumber: "DP-1", Status: billing.StatusDraft})

	rec := env.do(t, ownerA, http.MethodDelete, "/api/invoices/"+inv.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, ownerA, http.MethodDelete, "/api/invoices/"+inv.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvoicePDF(t *testing.T) {
	env := newTestEnv(t)
	client, err := env.clients.Create(ownerCtx(ownerA), store.ClientInput{Name: "Acme Corp", Email: strPtr("ap@acme.test")})
	require.NoError(t, err)
	env.settings.settings = &store.CompanySettings{CompanyName: strPtr("Studio North")}
	inv := env.invoices.add(store.Invoice{
		UserID:        ownerA,
		ClientID:      &client.ID,
		InvoiceNumber: "DP-2406-1001",
		IssueDate:     fixedNow,
		Status:        billing.StatusSent,
		Subtotal:      decimal.NewFromInt(1800),
		Tax:           decimal.NewFromInt(144),
		Total:         decimal.NewFromInt(1944),
		Items: []store.InvoiceItem{
			{Description: "Design", Qty: decimal.NewFromInt(10), Rate: decimal.NewFromInt(80), Amount: decimal.NewFromInt(800)},
		},
	})

	rec := env.do(t, ownerA, http.MethodPost, "/api/invoices/pdf", `{"invoiceId":"`+inv.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="DP-2406-1001.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	assert.Equal(t, "DP-2406-1001.pdf", env.invoices.pdfPaths[inv.ID])
}

func TestInvoicePDFWithoutSettingsOrClient(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoices.add(store.Invoice{UserID: ownerA, InvoiceNumber: "DP-2406-1002", IssueDate: fixedNow, Status: billing.StatusDraft})

	rec := env.do(t, ownerA, http.MethodPost, "/api/invoices/pdf", `{"invoiceId":"`+inv.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestInvoicePDFErrors(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invoices.add(store.Invoice{UserID: ownerA, InvoiceNumber: "DP-1", Status: billing.StatusDraft})

	rec := env.do(t, ownerA, http.MethodPost, "/api/invoices/pdf", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invoice ID is required"}`, rec.Body.String())

	rec = env.do(t, ownerB, http.MethodPost, "/api/invoices/pdf", `{"invoiceId":"`+inv.ID+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Invoice not found"}`, rec.Body.String())
}
