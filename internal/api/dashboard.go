package api

import (
	"net/http"
	"time"

	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/store"
)

const dashboardListSize = 5

// DashboardHandler summarises the owner's workspace.
type DashboardHandler struct {
	Projects ProjectRepository
	Invoices InvoiceRepository
	Counts   DashboardRepository
	Now      func() time.Time
}

type dashboardResponse struct {
	Stats          store.DashboardCounts `json:"stats"`
	TaskProgress   float64               `json:"task_progress"`
	ActiveProjects []store.Project       `json:"active_projects"`
	RecentInvoices []store.Invoice       `json:"recent_invoices"`
}

func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Counts.Counts(r.Context())
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	projects, err := h.Projects.List(r.Context(), store.ProjectStatusActive)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if len(projects) > dashboardListSize {
		projects = projects[:dashboardListSize]
	}

	invoices, err := h.Invoices.List(r.Context(), store.InvoiceFilter{Limit: dashboardListSize})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	for i := range invoices {
		invoices[i].Status = billing.EffectiveStatus(invoices[i], now)
	}

	progress := 0.0
	if counts.TotalTasks > 0 {
		progress = float64(counts.CompletedTasks) / float64(counts.TotalTasks)
	}

	if projects == nil {
		projects = []store.Project{}
	}
	if invoices == nil {
		invoices = []store.Invoice{}
	}
	sendJSON(w, http.StatusOK, dashboardResponse{
		Stats:          counts,
		TaskProgress:   progress,
		ActiveProjects: projects,
		RecentInvoices: invoices,
	})
}
