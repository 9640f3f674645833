package api

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/planner"
	"github.com/devpilot-hq/devpilot/internal/store"
)

// The handlers depend on these narrow views of the stores so tests can swap
// in memory fakes. The *store types satisfy them.

type ClientRepository interface {
	List(ctx context.Context) ([]store.Client, error)
	GetByID(ctx context.Context, id string) (*store.Client, error)
	Create(ctx context.Context, input store.ClientInput) (*store.Client, error)
	Update(ctx context.Context, id string, input store.ClientInput) (*store.Client, error)
	Delete(ctx context.Context, id string) error
}

type ProjectRepository interface {
	List(ctx context.Context, status string) ([]store.Project, error)
	GetByID(ctx context.Context, id string) (*store.Project, error)
	Create(ctx context.Context, input store.ProjectInput) (*store.Project, error)
	Update(ctx context.Context, id string, input store.ProjectInput) (*store.Project, error)
	Delete(ctx context.Context, id string) error
}

type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*store.Task, error)
	ListByProject(ctx context.Context, projectID string) ([]store.Task, error)
	Create(ctx context.Context, input store.CreateTaskInput) (*store.Task, error)
	Update(ctx context.Context, id string, input store.UpdateTaskInput) (*store.Task, error)
	Move(ctx context.Context, id string, status string) (*store.Task, error)
	Delete(ctx context.Context, id string) error
}

type InvoiceRepository interface {
	List(ctx context.Context, filter store.InvoiceFilter) ([]store.Invoice, error)
	GetByID(ctx context.Context, id string) (*store.Invoice, error)
	Delete(ctx context.Context, id string) error
	SetPDFPath(ctx context.Context, id string, path string) error
}

// InvoiceService is the billing lifecycle used by the invoice endpoints.
type InvoiceService interface {
	CreateDraft(ctx context.Context, input billing.DraftInput) (*store.Invoice, error)
	PreviewTotals(items []billing.DraftItem, taxRate, discount decimal.Decimal) billing.Totals
	RequestPayment(ctx context.Context, invoiceID string) (string, error)
}

type SettingsRepository interface {
	Get(ctx context.Context) (*store.CompanySettings, error)
	Upsert(ctx context.Context, input store.CompanySettingsInput) (*store.CompanySettings, error)
}

type NoteRepository interface {
	List(ctx context.Context, projectID string, taskID string) ([]store.ProjectNote, error)
	Create(ctx context.Context, projectID string, input store.ProjectNoteInput) (*store.ProjectNote, error)
	GetByID(ctx context.Context, id string) (*store.ProjectNote, error)
	Update(ctx context.Context, id string, input store.ProjectNoteInput) (*store.ProjectNote, error)
	Delete(ctx context.Context, id string) error
}

type ResourceRepository interface {
	List(ctx context.Context, projectID string) ([]store.ProjectResource, error)
	Create(ctx context.Context, projectID string, input store.CreateProjectResourceInput) (*store.ProjectResource, error)
	Delete(ctx context.Context, id string) error
}

type ChatRepository interface {
	Create(ctx context.Context, input store.CreateProjectChatMessageInput) (*store.ProjectChatMessage, error)
	List(ctx context.Context, projectID string, limit int, beforeCreatedAt *time.Time, beforeID *string) ([]store.ProjectChatMessage, bool, error)
}

type DashboardRepository interface {
	Counts(ctx context.Context) (store.DashboardCounts, error)
}

type PlanGenerator interface {
	Configured() bool
	GeneratePlan(ctx context.Context, idea string) (*planner.Result, error)
}

// ChangeNotifier receives project workspace changes for realtime delivery.
type ChangeNotifier interface {
	TaskCreated(ownerID, projectID, taskID string)
	TaskMoved(ownerID, projectID, taskID string)
	ChatMessageCreated(ownerID, projectID, messageID string)
	NoteChanged(ownerID, projectID, noteID string)
}

type noopNotifier struct{}

func (noopNotifier) TaskCreated(string, string, string)        {}
func (noopNotifier) TaskMoved(string, string, string)          {}
func (noopNotifier) ChatMessageCreated(string, string, string) {}
func (noopNotifier) NoteChanged(string, string, string)        {}

var (
	_ ClientRepository    = (*store.ClientStore)(nil)
	_ ProjectRepository   = (*store.ProjectStore)(nil)
	_ TaskRepository      = (*store.TaskStore)(nil)
	_ InvoiceRepository   = (*store.InvoiceStore)(nil)
	_ InvoiceService      = (*billing.Service)(nil)
	_ SettingsRepository  = (*store.CompanySettingsStore)(nil)
	_ NoteRepository      = (*store.ProjectNoteStore)(nil)
	_ ResourceRepository  = (*store.ProjectResourceStore)(nil)
	_ ChatRepository      = (*store.ProjectChatStore)(nil)
	_ DashboardRepository = (*store.DashboardStore)(nil)
	_ PlanGenerator       = (*planner.Planner)(nil)
)
