package pdf

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-hq/devpilot/internal/store"
)

func strPtr(s string) *string { return &s }

func sampleInvoice() store.Invoice {
	issued := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	due := issued.AddDate(0, 0, 30)
	return store.Invoice{
		ID:            "inv-1",
		InvoiceNumber: "DP-202412-0001",
		ClientName:    strPtr("Acme Corporation"),
		IssueDate:     issued,
		DueDate:       &due,
		Currency:      "USD",
		Status:        "sent",
		Subtotal:      decimal.RequireFromString("1800"),
		Tax:           decimal.RequireFromString("144"),
		Discount:      decimal.Zero,
		Total:         decimal.RequireFromString("1944"),
		Metadata:      json.RawMessage(`{"notes":"Phase 1 — setup"}`),
		CreatedAt:     issued,
		Items: []store.InvoiceItem{
			{Description: "Project setup", Qty: decimal.NewFromInt(10), Rate: decimal.NewFromInt(100), Amount: decimal.NewFromInt(1000)},
			{Description: "Authentication", Qty: decimal.NewFromInt(8), Rate: decimal.NewFromInt(100), Amount: decimal.NewFromInt(800)},
		},
	}
}

func TestRenderInvoiceProducesPDF(t *testing.T) {
	var buf bytes.Buffer
	err := RenderInvoice(&buf, Document{
		Invoice: sampleInvoice(),
		Client: &store.Client{
			Name:           "Acme Corporation",
			Email:          strPtr("billing@acme.com"),
			BillingAddress: &store.Address{Street: "123 Business Ave", City: "New York", State: "NY", Zip: "10001", Country: "USA"},
		},
		Settings: &store.CompanySettings{
			CompanyName:   strPtr("DevPilot Solutions"),
			InvoiceFooter: strPtr("Thanks!"),
			BankName:      strPtr("First Bank"),
			AccountNumber: strPtr("000123"),
		},
		Status: "overdue",
	})
	require.NoError(t, err)

	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, []byte("%PDF")), "output should start with the PDF magic")
	assert.Contains(t, string(out), "%%EOF")
}

func TestRenderInvoiceWithoutClientOrSettings(t *testing.T) {
	inv := sampleInvoice()
	inv.ClientName = nil
	inv.Items = nil
	inv.Metadata = nil
	inv.DueDate = nil

	var buf bytes.Buffer
	require.NoError(t, RenderInvoice(&buf, Document{Invoice: inv}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestDescription(t *testing.T) {
	assert.Equal(t, "No description provided", Description(nil))
	assert.Equal(t, "No description provided", Description([]store.InvoiceItem{{Description: "  "}}))
	assert.Equal(t, "Setup — Auth", Description([]store.InvoiceItem{{Description: "Setup"}, {Description: "Auth"}}))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1944.00 USD", FormatAmount(decimal.RequireFromString("1944"), "usd"))
	assert.Equal(t, "-0.50 EUR", FormatAmount(decimal.RequireFromString("-0.5"), "EUR"))
}

func TestBilledToLines(t *testing.T) {
	assert.Equal(t, []string{"N/A"}, billedToLines(Document{}))
	assert.Equal(t, []string{"Beta LLC"}, billedToLines(Document{Invoice: store.Invoice{ClientName: strPtr("Beta LLC")}}))

	lines := billedToLines(Document{Client: &store.Client{
		Name:           "SoloDev Agency",
		BillingAddress: &store.Address{City: "Austin", Country: "USA"},
	}})
	assert.Equal(t, []string{"SoloDev Agency", "Austin", "USA"}, lines)
}

func TestInvoiceNotesAndFilename(t *testing.T) {
	assert.Equal(t, "pay soon", invoiceNotes(json.RawMessage(`{"notes":" pay soon "}`)))
	assert.Empty(t, invoiceNotes(json.RawMessage(`not json`)))
	assert.Equal(t, "DP-202412-0001.pdf", Filename("DP-202412-0001"))
	assert.Equal(t, "abc...", truncate("abcdefgh", 6))
}
