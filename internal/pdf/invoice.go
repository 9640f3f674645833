// Package pdf renders invoices as PDF documents.
package pdf

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/devpilot-hq/devpilot/internal/store"
)

const (
	defaultCompanyName = "Your Name"
	defaultFooter      = "Thank you for your business!"
	dateLayout         = "Jan 2, 2006"
	pageWidth          = 180.0
)

// Document collects everything printed on an invoice. Client and Settings
// are optional.
type Document struct {
	Invoice  store.Invoice
	Client   *store.Client
	Settings *store.CompanySettings
	// Status overrides Invoice.Status, for read-time statuses such as overdue.
	Status string
}

// Filename is the attachment name for an invoice PDF.
func Filename(invoiceNumber string) string {
	return invoiceNumber + ".pdf"
}

// RenderInvoice writes doc as a single A4 PDF to w.
func RenderInvoice(w io.Writer, doc Document) error {
	inv := doc.Invoice

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetCreator("DevPilot", true)
	pdf.SetTitle("Invoice "+inv.InvoiceNumber, true)
	pdf.SetCreationDate(inv.CreatedAt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	footer := defaultFooter
	companyName := defaultCompanyName
	if s := doc.Settings; s != nil {
		if s.CompanyName != nil && strings.TrimSpace(*s.CompanyName) != "" {
			companyName = strings.TrimSpace(*s.CompanyName)
		}
		if s.InvoiceFooter != nil && strings.TrimSpace(*s.InvoiceFooter) != "" {
			footer = strings.TrimSpace(*s.InvoiceFooter)
		}
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-18)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(0, 6, tr(footer), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(pageWidth/2, 9, tr(companyName), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(pageWidth/2, 9, "Invoice", "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Invoice Number: "+inv.InvoiceNumber), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, "Issue Date: "+inv.IssueDate.Format(dateLayout), "", 1, "R", false, 0, "")
	if inv.DueDate != nil {
		pdf.CellFormat(0, 6, "Due Date: "+inv.DueDate.Format(dateLayout), "", 1, "R", false, 0, "")
	}
	status := doc.Status
	if status == "" {
		status = inv.Status
	}
	pdf.CellFormat(0, 6, "Status: "+strings.ToUpper(status), "", 1, "R", false, 0, "")
	pdf.Ln(6)

	// Billed to
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Billed To:", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range billedToLines(doc) {
		pdf.CellFormat(0, 5, tr(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// Description
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Description:", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(Description(inv.Items)), "", "L", false)
	pdf.Ln(4)

	writeItemsTable(pdf, tr, inv)
	pdf.Ln(4)
	writeTotals(pdf, inv)

	if notes := invoiceNotes(inv.Metadata); notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, "Notes:", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(notes), "", "L", false)
	}

	if doc.Settings != nil && doc.Settings.HasBankDetails() {
		pdf.Ln(8)
		writeBankDetails(pdf, tr, doc.Settings)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to lay out invoice pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write invoice pdf: %w", err)
	}
	return nil
}

// Description joins item descriptions for the summary block.
func Description(items []store.InvoiceItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if d := strings.TrimSpace(item.Description); d != "" {
			parts = append(parts, d)
		}
	}
	if len(parts) == 0 {
		return "No description provided"
	}
	return strings.Join(parts, " — ")
}

// FormatAmount prints an amount with two decimals and its currency code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + strings.ToUpper(currency)
}

func billedToLines(doc Document) []string {
	if doc.Client == nil {
		name := "N/A"
		if doc.Invoice.ClientName != nil && *doc.Invoice.ClientName != "" {
			name = *doc.Invoice.ClientName
		}
		return []string{name}
	}
	lines := []string{doc.Client.Name}
	if doc.Client.BillingAddress != nil {
		lines = append(lines, doc.Client.BillingAddress.Lines()...)
	}
	if doc.Client.Email != nil && *doc.Client.Email != "" {
		lines = append(lines, *doc.Client.Email)
	}
	return lines
}

func writeItemsTable(pdf *fpdf.Fpdf, tr func(string) string, inv store.Invoice) {
	widths := []float64{100, 20, 30, 30}
	headers := []string{"Item", "Qty", "Rate", "Amount"}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 238, 245)
	for i, header := range headers {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 7, header, "B", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range inv.Items {
		pdf.CellFormat(widths[0], 6, tr(truncate(item.Description, 60)), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, item.Qty.String(), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 6, item.Rate.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, item.Amount.StringFixed(2), "", 1, "R", false, 0, "")
	}
}

func writeTotals(pdf *fpdf.Fpdf, inv store.Invoice) {
	rows := []struct {
		label  string
		amount decimal.Decimal
	}{
		{"Subtotal", inv.Subtotal},
		{"Tax", inv.Tax},
		{"Discount", inv.Discount.Neg()},
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		pdf.CellFormat(pageWidth-50, 6, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, FormatAmount(row.amount, inv.Currency), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(pageWidth-50, 8, "Amount", "T", 0, "R", false, 0, "")
	pdf.CellFormat(50, 8, FormatAmount(inv.Total, inv.Currency), "T", 1, "R", false, 0, "")
}

func writeBankDetails(pdf *fpdf.Fpdf, tr func(string) string, s *store.CompanySettings) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 7, "Banking Details for Payment", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)

	rows := []struct {
		label string
		value *string
	}{
		{"Bank Name", s.BankName},
		{"Account Holder", s.AccountHolder},
		{"Account Number", s.AccountNumber},
		{"Account Type", s.AccountType},
		{"IBAN", s.IBAN},
	}
	for _, row := range rows {
		if row.value == nil || strings.TrimSpace(*row.value) == "" {
			continue
		}
		pdf.CellFormat(45, 6, row.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(90, 6, tr(strings.TrimSpace(*row.value)), "1", 1, "L", false, 0, "")
	}
}

func invoiceNotes(metadata json.RawMessage) string {
	if len(metadata) == 0 {
		return ""
	}
	var meta struct {
		Notes string `json:"notes"`
	}
	if err := json.Unmarshal(metadata, &meta); err != nil {
		return ""
	}
	return strings.TrimSpace(meta.Notes)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
