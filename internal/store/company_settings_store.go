package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CompanySettings holds the owner's invoicing identity and banking details.
type CompanySettings struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	CompanyName       *string         `json:"company_name,omitempty"`
	CompanyLogo       *string         `json:"company_logo,omitempty"`
	DefaultHourlyRate decimal.Decimal `json:"default_hourly_rate"`
	InvoiceFooter     *string         `json:"invoice_footer,omitempty"`
	BankName          *string         `json:"bank_name,omitempty"`
	AccountNumber     *string         `json:"account_number,omitempty"`
	AccountHolder     *string         `json:"account_holder,omitempty"`
	AccountType       *string         `json:"account_type,omitempty"`
	IBAN              *string         `json:"iban,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// HasBankDetails reports whether enough banking data exists to print a payment table.
func (c CompanySettings) HasBankDetails() bool {
	return nonEmpty(c.BankName) || nonEmpty(c.AccountNumber)
}

// CompanySettingsInput holds the writable fields of the settings row.
type CompanySettingsInput struct {
	CompanyName       *string
	CompanyLogo       *string
	DefaultHourlyRate decimal.Decimal
	InvoiceFooter     *string
	BankName          *string
	AccountNumber     *string
	AccountHolder     *string
	AccountType       *string
	IBAN              *string
}

// CompanySettingsStore provides access to the single settings row of each owner.
type CompanySettingsStore struct {
	db *sql.DB
}

// NewCompanySettingsStore creates a new CompanySettingsStore with the given database connection.
func NewCompanySettingsStore(db *sql.DB) *CompanySettingsStore {
	return &CompanySettingsStore{db: db}
}

const companySettingsSelectColumns = `id, user_id, company_name, company_logo, default_hourly_rate,
	invoice_footer, bank_name, account_number, account_holder, account_type, iban, created_at, updated_at`

// Get returns the owner's settings, or ErrNotFound when none were saved.
func (s *CompanySettingsStore) Get(ctx context.Context) (*CompanySettings, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	settings, err := scanCompanySettings(s.db.QueryRowContext(ctx,
		"SELECT "+companySettingsSelectColumns+" FROM company_settings WHERE user_id = $1",
		ownerID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get company settings: %w", err)
	}

	return &settings, nil
}

// Upsert creates or replaces the owner's settings.
func (s *CompanySettingsStore) Upsert(ctx context.Context, input CompanySettingsInput) (*CompanySettings, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO company_settings (
		user_id, company_name, company_logo, default_hourly_rate, invoice_footer,
		bank_name, account_number, account_holder, account_type, iban
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (user_id) DO UPDATE SET
		company_name = EXCLUDED.company_name,
		company_logo = EXCLUDED.company_logo,
		default_hourly_rate = EXCLUDED.default_hourly_rate,
		invoice_footer = EXCLUDED.invoice_footer,
		bank_name = EXCLUDED.bank_name,
		account_number = EXCLUDED.account_number,
		account_holder = EXCLUDED.account_holder,
		account_type = EXCLUDED.account_type,
		iban = EXCLUDED.iban
	RETURNING ` + companySettingsSelectColumns

	settings, err := scanCompanySettings(s.db.QueryRowContext(ctx, query,
		ownerID,
		nullableString(input.CompanyName),
		nullableString(input.CompanyLogo),
		input.DefaultHourlyRate.StringFixed(2),
		nullableString(input.InvoiceFooter),
		nullableString(input.BankName),
		nullableString(input.AccountNumber),
		nullableString(input.AccountHolder),
		nullableString(input.AccountType),
		nullableString(input.IBAN),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to save company settings: %w", err)
	}

	return &settings, nil
}

func scanCompanySettings(scanner interface{ Scan(...any) error }) (CompanySettings, error) {
	var settings CompanySettings
	var name, logo, footer, bankName, accountNumber, accountHolder, accountType, iban sql.NullString

	err := scanner.Scan(
		&settings.ID,
		&settings.UserID,
		&name,
		&logo,
		&settings.DefaultHourlyRate,
		&footer,
		&bankName,
		&accountNumber,
		&accountHolder,
		&accountType,
		&iban,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err != nil {
		return settings, err
	}

	settings.CompanyName = stringPtr(name)
	settings.CompanyLogo = stringPtr(logo)
	settings.InvoiceFooter = stringPtr(footer)
	settings.BankName = stringPtr(bankName)
	settings.AccountNumber = stringPtr(accountNumber)
	settings.AccountHolder = stringPtr(accountHolder)
	settings.AccountType = stringPtr(accountType)
	settings.IBAN = stringPtr(iban)

	return settings, nil
}

func nonEmpty(value *string) bool {
	return value != nil && strings.TrimSpace(*value) != ""
}
