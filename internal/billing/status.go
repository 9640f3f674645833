package billing

import (
	"time"

	"github.com/devpilot-hq/devpilot/internal/store"
)

// Invoice statuses. Overdue is only ever reported, never stored by this package.
const (
	StatusDraft   = "draft"
	StatusSent    = "sent"
	StatusPaid    = "paid"
	StatusOverdue = "overdue"
)

// ValidStatus reports whether status is a known invoice status.
func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue:
		return true
	default:
		return false
	}
}

// EffectiveStatus is the status to display at now: a sent invoice past its
// due date reads as overdue.
func EffectiveStatus(inv store.Invoice, now time.Time) string {
	if inv.Status != StatusSent || inv.DueDate == nil {
		return inv.Status
	}
	if dateOnly(*inv.DueDate).Before(dateOnly(now)) {
		return StatusOverdue
	}
	return inv.Status
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
