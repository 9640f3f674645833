package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// DashboardCounts are the owner-wide figures shown on the dashboard.
type DashboardCounts struct {
	ActiveProjects  int             `json:"active_projects"`
	CompletedTasks  int             `json:"completed_tasks"`
	TotalTasks      int             `json:"total_tasks"`
	PendingInvoices int             `json:"pending_invoices"`
	Outstanding     decimal.Decimal `json:"outstanding"`
}

type DashboardStore struct {
	db *sql.DB
}

func NewDashboardStore(db *sql.DB) *DashboardStore {
	return &DashboardStore{db: db}
}

// Counts aggregates the owner's projects, tasks and unpaid invoices.
func (s *DashboardStore) Counts(ctx context.Context) (DashboardCounts, error) {
	var counts DashboardCounts
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return counts, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM projects WHERE user_id = $1 AND status = 'active'),
		(SELECT COUNT(*) FROM tasks WHERE user_id = $1 AND status = 'done'),
		(SELECT COUNT(*) FROM tasks WHERE user_id = $1),
		(SELECT COUNT(*) FROM invoices WHERE user_id = $1 AND status IN ('draft', 'sent')),
		(SELECT COALESCE(SUM(total), 0) FROM invoices WHERE user_id = $1 AND status IN ('draft', 'sent'))`,
		ownerID,
	).Scan(
		&counts.ActiveProjects,
		&counts.CompletedTasks,
		&counts.TotalTasks,
		&counts.PendingInvoices,
		&counts.Outstanding,
	)
	if err != nil {
		return counts, fmt.Errorf("failed to load dashboard counts: %w", err)
	}

	return counts, nil
}
