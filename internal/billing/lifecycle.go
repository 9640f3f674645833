package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/devpilot-hq/devpilot/internal/logger"
	"github.com/devpilot-hq/devpilot/internal/store"
)

const (
	defaultCurrency      = "USD"
	maxNumberAttempts    = 5
	itemPlaces           = 2
	paymentSuccessSuffix = "?payment=success"
	paymentCancelSuffix  = "?payment=cancelled"
)

var (
	ErrClientRequired         = errors.New("client is required")
	ErrItemsRequired          = errors.New("at least one item is required")
	ErrInvalidItem            = errors.New("every item needs a description and a positive rate")
	ErrInvoiceNumberExhausted = errors.New("could not allocate a unique invoice number")
	ErrPaymentProcessor       = errors.New("payment processor request failed")
)

// InvoiceRepository persists invoices. Implemented by store.InvoiceStore.
type InvoiceRepository interface {
	CreateWithItems(ctx context.Context, input store.CreateInvoiceInput) (*store.Invoice, error)
	GetByID(ctx context.Context, id string) (*store.Invoice, error)
	SetPaymentRefs(ctx context.Context, id string, refs store.PaymentRefs) error
	SetStatusByProcessorRef(ctx context.Context, ref store.ProcessorRef, status string) ([]store.InvoiceRef, error)
}

// CheckoutRequest asks the payment processor for a hosted payment page.
type CheckoutRequest struct {
	InvoiceID     string
	InvoiceNumber string
	Amount        decimal.Decimal
	Currency      string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is the processor's answer to a CheckoutRequest.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID *string
}

// PaymentProcessor creates hosted checkout sessions.
type PaymentProcessor interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Notifier is told about invoices whose status changed.
type Notifier interface {
	InvoiceUpdated(ownerID, invoiceID string)
}

// DraftItem is one line of a new invoice.
type DraftItem struct {
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	Rate        decimal.Decimal `json:"rate"`
}

// DraftInput describes a new invoice.
type DraftInput struct {
	ClientID  string
	ProjectID *string
	IssueDate time.Time
	DueDate   *time.Time
	Currency  string
	TaxRate   decimal.Decimal
	Discount  decimal.Decimal
	Notes     string
	Items     []DraftItem
}

// Service drives an invoice from draft to paid.
type Service struct {
	Invoices  InvoiceRepository
	Processor PaymentProcessor
	Notifier  Notifier
	Numbers   NumberGenerator
	AppURL    string
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() zerolog.Logger {
	return logger.WithComponent("billing")
}

// PreviewTotals computes totals for a draft without persisting anything.
func (s *Service) PreviewTotals(items []DraftItem, taxRate, discount decimal.Decimal) Totals {
	return CalculateTotals(lineInputs(items), taxRate, discount)
}

// CreateDraft validates input, numbers the invoice and stores it with its
// items as a draft.
func (s *Service) CreateDraft(ctx context.Context, input DraftInput) (*store.Invoice, error) {
	if err := validateDraft(input); err != nil {
		return nil, err
	}

	totals := CalculateTotals(lineInputs(input.Items), input.TaxRate, input.Discount)

	metadata, err := json.Marshal(map[string]string{"notes": strings.TrimSpace(input.Notes)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode invoice metadata: %w", err)
	}

	issueDate := input.IssueDate
	if issueDate.IsZero() {
		issueDate = s.now()
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	items := make([]store.InvoiceItemInput, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, store.InvoiceItemInput{
			Description: strings.TrimSpace(item.Description),
			Qty:         item.Qty,
			Rate:        item.Rate,
		})
	}

	clientID := strings.TrimSpace(input.ClientID)
	record := store.CreateInvoiceInput{
		ClientID:  &clientID,
		ProjectID: input.ProjectID,
		IssueDate: issueDate,
		DueDate:   input.DueDate,
		Currency:  currency,
		Status:    StatusDraft,
		Subtotal:  totals.Subtotal,
		Tax:       totals.Tax,
		Discount:  totals.Discount,
		Total:     totals.Total,
		Metadata:  metadata,
		Items:     items,
	}

	numbers := s.Numbers
	if numbers.Now == nil {
		numbers.Now = s.now
	}
	log := s.log()
	suffix := numbers.Seed()
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		record.InvoiceNumber = numbers.Format(suffix + attempt)
		invoice, err := s.Invoices.CreateWithItems(ctx, record)
		if err == nil {
			return invoice, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		log.Debug().Str("invoice_number", record.InvoiceNumber).Msg("invoice number taken, retrying")
	}

	return nil, ErrInvoiceNumberExhausted
}

// RequestPayment opens a checkout session for the owner's invoice, records
// the processor references and marks the invoice sent. It returns the URL of
// the hosted payment page.
func (s *Service) RequestPayment(ctx context.Context, invoiceID string) (string, error) {
	invoice, err := s.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return "", err
	}

	base := strings.TrimRight(s.AppURL, "/") + "/invoices/" + invoice.ID
	session, err := s.Processor.CreateCheckout(ctx, CheckoutRequest{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        invoice.Total,
		Currency:      invoice.Currency,
		SuccessURL:    base + paymentSuccessSuffix,
		CancelURL:     base + paymentCancelSuffix,
		Metadata: map[string]string{
			"invoice_id":     invoice.ID,
			"invoice_number": invoice.InvoiceNumber,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPaymentProcessor, err)
	}

	err = s.Invoices.SetPaymentRefs(ctx, invoice.ID, store.PaymentRefs{
		PaymentIntentID:   session.PaymentIntentID,
		CheckoutSessionID: session.ID,
		Status:            StatusSent,
	})
	if err != nil {
		return "", fmt.Errorf("failed to record checkout session: %w", err)
	}

	s.notify(invoice.UserID, invoice.ID)
	return session.URL, nil
}

// MarkPaid sets every invoice matched by ref to paid and records the
// payment intent when ref carries one. It reports false when nothing matched.
func (s *Service) MarkPaid(ctx context.Context, ref store.ProcessorRef) (bool, error) {
	return s.setStatusByRef(ctx, ref, StatusPaid)
}

// MarkPaymentFailed puts every invoice matched by ref back to sent.
func (s *Service) MarkPaymentFailed(ctx context.Context, ref store.ProcessorRef) (bool, error) {
	return s.setStatusByRef(ctx, ref, StatusSent)
}

func (s *Service) setStatusByRef(ctx context.Context, ref store.ProcessorRef, status string) (bool, error) {
	touched, err := s.Invoices.SetStatusByProcessorRef(ctx, ref, status)
	if err != nil {
		return false, err
	}

	log := s.log().With().
		Str("status", status).
		Str("invoice_ref", ref.InvoiceID).
		Str("checkout_session", ref.CheckoutSessionID).
		Str("payment_intent", ref.PaymentIntentID).
		Logger()
	if len(touched) == 0 {
		log.Info().Msg("no invoice matches processor reference")
		return false, nil
	}
	for _, invoice := range touched {
		log.Info().Str("invoice_id", invoice.ID).Msg("invoice status updated")
		s.notify(invoice.UserID, invoice.ID)
	}
	return true, nil
}

func (s *Service) notify(ownerID, invoiceID string) {
	if s.Notifier != nil {
		s.Notifier.InvoiceUpdated(ownerID, invoiceID)
	}
}

func validateDraft(input DraftInput) error {
	if strings.TrimSpace(input.ClientID) == "" {
		return ErrClientRequired
	}
	if len(input.Items) == 0 {
		return ErrItemsRequired
	}
	for i, item := range input.Items {
		if strings.TrimSpace(item.Description) == "" || !item.Rate.IsPositive() || item.Qty.IsNegative() {
			return fmt.Errorf("%w (item %d)", ErrInvalidItem, i+1)
		}
		// qty and rate are stored with two places; anything finer would be
		// rounded by the database and no longer match the invoice totals.
		if !fitsItemColumn(item.Qty) || !fitsItemColumn(item.Rate) {
			return fmt.Errorf("%w (item %d): qty and rate allow at most %d decimal places", ErrInvalidItem, i+1, itemPlaces)
		}
	}
	return nil
}

func fitsItemColumn(value decimal.Decimal) bool {
	return value.Equal(value.Round(itemPlaces))
}

func lineInputs(items []DraftItem) []LineInput {
	lines := make([]LineInput, 0, len(items))
	for _, item := range items {
		lines = append(lines, LineInput{Qty: item.Qty, Rate: item.Rate})
	}
	return lines
}
