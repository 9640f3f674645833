package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice represents an invoice with its money fields stored at cent precision.
type Invoice struct {
	ID                      string          `json:"id"`
	UserID                  string          `json:"user_id"`
	ClientID                *string         `json:"client_id,omitempty"`
	ClientName              *string         `json:"client_name,omitempty"`
	ProjectID               *string         `json:"project_id,omitempty"`
	InvoiceNumber           string          `json:"invoice_number"`
	IssueDate               time.Time       `json:"issue_date"`
	DueDate                 *time.Time      `json:"due_date,omitempty"`
	Currency                string          `json:"currency"`
	Status                  string          `json:"status"`
	Subtotal                decimal.Decimal `json:"subtotal"`
	Tax                     decimal.Decimal `json:"tax"`
	Discount                decimal.Decimal `json:"discount"`
	Total                   decimal.Decimal `json:"total"`
	PDFPath                 *string         `json:"pdf_path,omitempty"`
	StripePaymentIntentID   *string         `json:"stripe_payment_intent_id,omitempty"`
	StripeCheckoutSessionID *string         `json:"stripe_checkout_session_id,omitempty"`
	Metadata                json.RawMessage `json:"metadata"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
	Items                   []InvoiceItem   `json:"items,omitempty"`
}

// InvoiceItem is one billed line. Amount is computed by the database.
type InvoiceItem struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id"`
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InvoiceItemInput is a line to insert with a new invoice.
type InvoiceItemInput struct {
	Description string
	Qty         decimal.Decimal
	Rate        decimal.Decimal
}

// CreateInvoiceInput defines a new invoice and its items.
type CreateInvoiceInput struct {
	ClientID      *string
	ProjectID     *string
	InvoiceNumber string
	IssueDate     time.Time
	DueDate       *time.Time
	Currency      string
	Status        string
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Metadata      json.RawMessage
	Items         []InvoiceItemInput
}

// PaymentRefs are the processor references recorded when checkout starts.
type PaymentRefs struct {
	PaymentIntentID   *string
	CheckoutSessionID string
	Status            string
}

// ProcessorRef locates invoices from a processor callback. Empty fields take
// no part in the match. A known payment intent is recorded on every matched
// invoice.
type ProcessorRef struct {
	InvoiceID         string
	CheckoutSessionID string
	PaymentIntentID   string
}

func (r ProcessorRef) normalized() ProcessorRef {
	out := ProcessorRef{
		InvoiceID:         strings.TrimSpace(r.InvoiceID),
		CheckoutSessionID: strings.TrimSpace(r.CheckoutSessionID),
		PaymentIntentID:   strings.TrimSpace(r.PaymentIntentID),
	}
	if !ValidID(out.InvoiceID) {
		out.InvoiceID = ""
	}
	return out
}

// IsZero reports whether r cannot match any invoice.
func (r ProcessorRef) IsZero() bool {
	n := r.normalized()
	return n.InvoiceID == "" && n.CheckoutSessionID == "" && n.PaymentIntentID == ""
}

// InvoiceRef identifies an invoice touched by a processor callback.
type InvoiceRef struct {
	ID     string
	UserID string
}

// InvoiceStore provides owner-scoped access to invoices and their items.
type InvoiceStore struct {
	db *sql.DB
}

// NewInvoiceStore creates a new InvoiceStore with the given database connection.
func NewInvoiceStore(db *sql.DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// Statuses List filters on. Overdue is derived from the due date, never stored.
const (
	invoiceStatusSent    = "sent"
	invoiceStatusOverdue = "overdue"
)

const invoiceSelectColumns = `i.id, i.user_id, i.client_id, c.name, i.project_id, i.invoice_number,
	i.issue_date, i.due_date, i.currency, i.status, i.subtotal, i.tax, i.discount, i.total,
	i.pdf_path, i.stripe_payment_intent_id, i.stripe_checkout_session_id, i.metadata,
	i.created_at, i.updated_at`

const invoiceFrom = " FROM invoices i LEFT JOIN clients c ON c.id = i.client_id AND c.user_id = i.user_id"

const invoiceItemSelectColumns = "id, invoice_id, position, description, qty, rate, amount, created_at"

// CreateWithItems inserts an invoice and all of its items in one transaction.
// A clashing invoice number yields ErrDuplicate.
func (s *InvoiceStore) CreateWithItems(ctx context.Context, input CreateInvoiceInput) (*Invoice, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	clientID, err := nullableUUID(input.ClientID)
	if err != nil {
		return nil, err
	}
	projectID, err := nullableUUID(input.ProjectID)
	if err != nil {
		return nil, err
	}

	var invoiceID string
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `INSERT INTO invoices (
			user_id, client_id, project_id, invoice_number, issue_date, due_date, currency,
			status, subtotal, tax, discount, total, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
			ownerID,
			clientID,
			projectID,
			input.InvoiceNumber,
			input.IssueDate,
			nullableTime(input.DueDate),
			strings.ToUpper(strings.TrimSpace(input.Currency)),
			input.Status,
			input.Subtotal.StringFixed(2),
			input.Tax.StringFixed(2),
			input.Discount.StringFixed(2),
			input.Total.StringFixed(2),
			string(normalizeMetadata(input.Metadata)),
		).Scan(&invoiceID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: invoice number %s", ErrDuplicate, input.InvoiceNumber)
			}
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		for position, item := range input.Items {
			_, err := tx.ExecContext(ctx, `INSERT INTO invoice_items (
				user_id, invoice_id, position, description, qty, rate
			) VALUES ($1, $2, $3, $4, $5, $6)`,
				ownerID,
				invoiceID,
				position,
				strings.TrimSpace(item.Description),
				item.Qty.String(),
				item.Rate.String(),
			)
			if err != nil {
				return fmt.Errorf("failed to create invoice item %d: %w", position, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(ctx, invoiceID)
}

// GetByID retrieves one of the owner's invoices with its items.
func (s *InvoiceStore) GetByID(ctx context.Context, id string) (*Invoice, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	invoice, err := scanInvoice(s.db.QueryRowContext(ctx,
		"SELECT "+invoiceSelectColumns+invoiceFrom+" WHERE i.id = $1",
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if invoice.UserID != ownerID {
		return nil, ErrForbidden
	}

	items, err := s.listItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.Items = items

	return &invoice, nil
}

// InvoiceFilter narrows List. Status "overdue" selects sent invoices due
// before the AsOf date, and "sent" leaves those out. AsOf defaults to now.
type InvoiceFilter struct {
	Status string
	AsOf   time.Time
	Limit  int
}

func (f InvoiceFilter) asOfDate() string {
	if f.AsOf.IsZero() {
		return time.Now().Format("2006-01-02")
	}
	return f.AsOf.Format("2006-01-02")
}

// List returns the owner's invoices, newest first, without items.
func (s *InvoiceStore) List(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + invoiceSelectColumns + invoiceFrom + " WHERE i.user_id = $1"
	args := []interface{}{ownerID}
	switch status := strings.ToLower(strings.TrimSpace(filter.Status)); status {
	case "":
	case invoiceStatusOverdue:
		args = append(args, invoiceStatusSent, filter.asOfDate())
		query += fmt.Sprintf(" AND i.status = $%d AND i.due_date < $%d::date", len(args)-1, len(args))
	case invoiceStatusSent:
		args = append(args, invoiceStatusSent, filter.asOfDate())
		query += fmt.Sprintf(" AND i.status = $%d AND (i.due_date IS NULL OR i.due_date >= $%d::date)", len(args)-1, len(args))
	default:
		args = append(args, status)
		query += fmt.Sprintf(" AND i.status = $%d", len(args))
	}
	query += " ORDER BY i.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading invoices: %w", err)
	}

	return invoices, nil
}

// Delete removes one of the owner's invoices and its items.
func (s *InvoiceStore) Delete(ctx context.Context, id string) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if !ValidID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM invoices WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return requireRowsAffected(result, "delete")
}

// SetPaymentRefs records the processor references for one of the owner's
// invoices and sets its status.
func (s *InvoiceStore) SetPaymentRefs(ctx context.Context, id string, refs PaymentRefs) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if !ValidID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, `UPDATE invoices SET
		stripe_payment_intent_id = COALESCE($1, stripe_payment_intent_id),
		stripe_checkout_session_id = $2,
		status = $3
	WHERE id = $4 AND user_id = $5`,
		nullableString(refs.PaymentIntentID),
		nullableString(&refs.CheckoutSessionID),
		refs.Status,
		id,
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to record payment references: %w", err)
	}
	return requireRowsAffected(result, "payment reference")
}

// SetStatusByProcessorRef sets the status of every invoice, of any owner,
// matching ref by id, checkout session or payment intent. It returns the
// invoices it touched, which is empty when nothing matched.
func (s *InvoiceStore) SetStatusByProcessorRef(ctx context.Context, ref ProcessorRef, status string) ([]InvoiceRef, error) {
	ref = ref.normalized()
	if ref.IsZero() {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `UPDATE invoices SET
		status = $1,
		stripe_payment_intent_id = COALESCE($4::text, stripe_payment_intent_id),
		updated_at = NOW()
	WHERE id = $2::uuid OR stripe_checkout_session_id = $3::text OR stripe_payment_intent_id = $4::text
	RETURNING id, user_id`,
		status,
		nullableString(&ref.InvoiceID),
		nullableString(&ref.CheckoutSessionID),
		nullableString(&ref.PaymentIntentID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice status: %w", err)
	}
	defer rows.Close()

	refs := make([]InvoiceRef, 0)
	for rows.Next() {
		var touched InvoiceRef
		if err := rows.Scan(&touched.ID, &touched.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan invoice reference: %w", err)
		}
		refs = append(refs, touched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading invoice references: %w", err)
	}

	return refs, nil
}

// SetPDFPath records where the rendered document of an invoice lives.
func (s *InvoiceStore) SetPDFPath(ctx context.Context, id string, path string) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if !ValidID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE invoices SET pdf_path = $1 WHERE id = $2 AND user_id = $3",
		path, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to record pdf path: %w", err)
	}
	return requireRowsAffected(result, "pdf path")
}

func (s *InvoiceStore) listItems(ctx context.Context, invoiceID string) ([]InvoiceItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+invoiceItemSelectColumns+" FROM invoice_items WHERE invoice_id = $1 ORDER BY position ASC, created_at ASC",
		invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice items: %w", err)
	}
	defer rows.Close()

	items := make([]InvoiceItem, 0)
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(
			&item.ID,
			&item.InvoiceID,
			&item.Position,
			&item.Description,
			&item.Qty,
			&item.Rate,
			&item.Amount,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading invoice items: %w", err)
	}

	return items, nil
}

func scanInvoice(scanner interface{ Scan(...any) error }) (Invoice, error) {
	var invoice Invoice
	var clientID, clientName, projectID, pdfPath, paymentIntentID, checkoutSessionID sql.NullString
	var dueDate sql.NullTime
	var metadata []byte

	err := scanner.Scan(
		&invoice.ID,
		&invoice.UserID,
		&clientID,
		&clientName,
		&projectID,
		&invoice.InvoiceNumber,
		&invoice.IssueDate,
		&dueDate,
		&invoice.Currency,
		&invoice.Status,
		&invoice.Subtotal,
		&invoice.Tax,
		&invoice.Discount,
		&invoice.Total,
		&pdfPath,
		&paymentIntentID,
		&checkoutSessionID,
		&metadata,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return invoice, err
	}

	invoice.ClientID = stringPtr(clientID)
	invoice.ClientName = stringPtr(clientName)
	invoice.ProjectID = stringPtr(projectID)
	invoice.PDFPath = stringPtr(pdfPath)
	invoice.StripePaymentIntentID = stringPtr(paymentIntentID)
	invoice.StripeCheckoutSessionID = stringPtr(checkoutSessionID)
	if dueDate.Valid {
		due := dueDate.Time
		invoice.DueDate = &due
	}
	invoice.Metadata = normalizeMetadata(metadata)

	return invoice, nil
}

func normalizeMetadata(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("{}")
	}
	return raw
}

func nullableTime(value *time.Time) interface{} {
	if value == nil || value.IsZero() {
		return nil
	}
	return *value
}
