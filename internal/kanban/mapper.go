// Package kanban maps the five task statuses onto a three column board.
package kanban

import (
	"fmt"
	"strings"
)

// Status is a persisted task status.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Column is a board column. Columns are identified by their canonical status.
type Column string

const (
	ColumnTodo       Column = "todo"
	ColumnInProgress Column = "in_progress"
	ColumnDone       Column = "done"
)

var columnOrder = []Column{ColumnTodo, ColumnInProgress, ColumnDone}

var columnTitles = map[Column]string{
	ColumnTodo:       "To Do",
	ColumnInProgress: "In Progress",
	ColumnDone:       "Done",
}

var statusColumns = map[Status]Column{
	StatusBacklog:    ColumnTodo,
	StatusTodo:       ColumnTodo,
	StatusInProgress: ColumnInProgress,
	StatusReview:     ColumnInProgress,
	StatusDone:       ColumnDone,
}

// Statuses returns every persisted status in workflow order.
func Statuses() []Status {
	return []Status{StatusBacklog, StatusTodo, StatusInProgress, StatusReview, StatusDone}
}

// Columns returns the board columns in display order.
func Columns() []Column {
	out := make([]Column, len(columnOrder))
	copy(out, columnOrder)
	return out
}

// ColumnFor returns the column a status is displayed in.
func ColumnFor(status Status) (Column, bool) {
	column, ok := statusColumns[status]
	return column, ok
}

// Title is the display name of a column.
func (c Column) Title() string {
	return columnTitles[c]
}

// CanonicalStatus is the status persisted for a task dropped on c.
func (c Column) CanonicalStatus() Status {
	return Status(c)
}

// Move returns the status a task takes when dropped on column, whatever
// its current status. Sub-states are not preserved: a review task dropped on
// In Progress becomes in_progress.
func Move(column Column) Status {
	return column.CanonicalStatus()
}

// ParseStatus validates an inbound status string.
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := statusColumns[status]; !ok {
		return "", fmt.Errorf("invalid task status %q", raw)
	}
	return status, nil
}

// ParseColumn validates an inbound column id. Any status is accepted and
// resolved to the column it displays in.
func ParseColumn(raw string) (Column, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return "", fmt.Errorf("invalid board column %q", raw)
	}
	return statusColumns[status], nil
}
