package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPaymentTerms is the payment term, in days, of a client created without one.
const DefaultPaymentTerms = 30

// Address is a client's postal billing address.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Lines returns the non-empty address parts in display order.
func (a Address) Lines() []string {
	lines := make([]string, 0, 5)
	for _, part := range []string{a.Street, a.City, a.State, a.Zip, a.Country} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// Client is someone the owner bills.
type Client struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	Name                string    `json:"name"`
	Email               *string   `json:"email,omitempty"`
	Phone               *string   `json:"phone,omitempty"`
	BillingAddress      *Address  `json:"billing_address,omitempty"`
	DefaultPaymentTerms int       `json:"default_payment_terms"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ClientStore provides owner-scoped access to clients.
type ClientStore struct {
	db *sql.DB
}

// NewClientStore creates a new ClientStore with the given database connection.
func NewClientStore(db *sql.DB) *ClientStore {
	return &ClientStore{db: db}
}

// ClientInput holds the writable fields of a client.
type ClientInput struct {
	Name                string
	Email               *string
	Phone               *string
	BillingAddress      *Address
	DefaultPaymentTerms *int
}

const clientSelectColumns = "id, user_id, name, email, phone, billing_address, default_payment_terms, created_at, updated_at"

// List returns the owner's clients ordered by name.
func (s *ClientStore) List(ctx context.Context) ([]Client, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+clientSelectColumns+" FROM clients WHERE user_id = $1 ORDER BY name ASC",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]Client, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading clients: %w", err)
	}

	return clients, nil
}

// GetByID retrieves one of the owner's clients.
func (s *ClientStore) GetByID(ctx context.Context, id string) (*Client, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	client, err := scanClient(s.db.QueryRowContext(ctx,
		"SELECT "+clientSelectColumns+" FROM clients WHERE id = $1",
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if client.UserID != ownerID {
		return nil, ErrForbidden
	}

	return &client, nil
}

// Create inserts a client for the owner.
func (s *ClientStore) Create(ctx context.Context, input ClientInput) (*Client, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	address, err := marshalAddress(input.BillingAddress)
	if err != nil {
		return nil, err
	}

	terms := DefaultPaymentTerms
	if input.DefaultPaymentTerms != nil {
		terms = *input.DefaultPaymentTerms
	}

	query := `INSERT INTO clients (
		user_id, name, email, phone, billing_address, default_payment_terms
	) VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + clientSelectColumns

	client, err := scanClient(s.db.QueryRowContext(ctx, query,
		ownerID,
		strings.TrimSpace(input.Name),
		nullableString(input.Email),
		nullableString(input.Phone),
		address,
		terms,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &client, nil
}

// Update replaces the writable fields of one of the owner's clients.
func (s *ClientStore) Update(ctx context.Context, id string, input ClientInput) (*Client, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	address, err := marshalAddress(input.BillingAddress)
	if err != nil {
		return nil, err
	}

	terms := DefaultPaymentTerms
	if input.DefaultPaymentTerms != nil {
		terms = *input.DefaultPaymentTerms
	}

	query := `UPDATE clients SET
		name = $1, email = $2, phone = $3, billing_address = $4, default_payment_terms = $5
	WHERE id = $6 AND user_id = $7
	RETURNING ` + clientSelectColumns

	client, err := scanClient(s.db.QueryRowContext(ctx, query,
		strings.TrimSpace(input.Name),
		nullableString(input.Email),
		nullableString(input.Phone),
		address,
		terms,
		id,
		ownerID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	return &client, nil
}

// Delete removes one of the owner's clients.
func (s *ClientStore) Delete(ctx context.Context, id string) error {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}
	if !ValidID(id) {
		return ErrNotFound
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = $1 AND user_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return requireRowsAffected(result, "delete")
}

func marshalAddress(address *Address) (interface{}, error) {
	if address == nil || len(address.Lines()) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(address)
	if err != nil {
		return nil, fmt.Errorf("failed to encode billing address: %w", err)
	}
	return string(raw), nil
}

func scanClient(scanner interface{ Scan(...any) error }) (Client, error) {
	var client Client
	var email, phone sql.NullString
	var address []byte

	err := scanner.Scan(
		&client.ID,
		&client.UserID,
		&client.Name,
		&email,
		&phone,
		&address,
		&client.DefaultPaymentTerms,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		return client, err
	}

	client.Email = stringPtr(email)
	client.Phone = stringPtr(phone)
	if len(address) > 0 && string(address) != "null" {
		var parsed Address
		if err := json.Unmarshal(address, &parsed); err != nil {
			return client, fmt.Errorf("failed to decode billing address: %w", err)
		}
		client.BillingAddress = &parsed
	}

	return client, nil
}
