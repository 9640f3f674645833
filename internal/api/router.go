package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/devpilot-hq/devpilot/internal/logger"
	"github.com/devpilot-hq/devpilot/internal/middleware"
	"github.com/devpilot-hq/devpilot/internal/ws"
)

var startTime = time.Now()

type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Deps carries everything the router mounts.
type Deps struct {
	Auth      *middleware.Authenticator
	Clients   ClientRepository
	Projects  ProjectRepository
	Tasks     TaskRepository
	Invoices  InvoiceRepository
	Billing   InvoiceService
	Settings  SettingsRepository
	Notes     NoteRepository
	Resources ResourceRepository
	Chat      ChatRepository
	Dashboard DashboardRepository
	Planner   PlanGenerator
	Notifier  ChangeNotifier
	Webhook   http.Handler
	Hub       *ws.Hub
}

type Options struct {
	AllowedOrigins []string
	Now            func() time.Time
}

func NewRouter(deps Deps, opts Options) http.Handler {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logger.RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimw.SetHeader("Content-Type", "application/json"))

	r.Get("/health", handleHealth)
	if deps.Webhook != nil {
		r.Method(http.MethodPost, "/api/stripe/webhook", deps.Webhook)
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	clients := &ClientsHandler{Store: deps.Clients}
	projects := &ProjectsHandler{Store: deps.Projects}
	tasks := &TasksHandler{Projects: deps.Projects, Tasks: deps.Tasks, Notifier: notifier}
	invoices := &InvoicesHandler{
		Store:    deps.Invoices,
		Service:  deps.Billing,
		Clients:  deps.Clients,
		Settings: deps.Settings,
		Now:      opts.Now,
	}
	payments := &PaymentsHandler{Service: deps.Billing}
	plan := &PlanHandler{Planner: deps.Planner}
	settings := &SettingsHandler{Store: deps.Settings}
	notes := &NotesHandler{Store: deps.Notes, Notifier: notifier}
	resources := &ResourcesHandler{Store: deps.Resources}
	chat := &ProjectChatHandler{Store: deps.Chat, Notifier: notifier}
	dashboard := &DashboardHandler{
		Projects: deps.Projects,
		Invoices: deps.Invoices,
		Counts:   deps.Dashboard,
		Now:      opts.Now,
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireOwner)

		if deps.Hub != nil {
			r.Handle("/ws", &ws.Handler{Hub: deps.Hub, AllowedOrigins: opts.AllowedOrigins})
		}

		r.Get("/api/dashboard", dashboard.Get)

		r.Get("/api/clients", clients.List)
		r.Post("/api/clients", clients.Create)
		r.Get("/api/clients/{id}", clients.Get)
		r.Patch("/api/clients/{id}", clients.Patch)
		r.Delete("/api/clients/{id}", clients.Delete)

		r.Get("/api/projects", projects.List)
		r.Post("/api/projects", projects.Create)
		r.Get("/api/projects/{id}", projects.Get)
		r.Patch("/api/projects/{id}", projects.Patch)
		r.Delete("/api/projects/{id}", projects.Delete)

		r.Get("/api/projects/{id}/tasks", tasks.List)
		r.Post("/api/projects/{id}/tasks", tasks.Create)
		r.Get("/api/projects/{id}/board", tasks.Board)
		r.Patch("/api/tasks/{id}", tasks.Patch)
		r.Delete("/api/tasks/{id}", tasks.Delete)
		r.Post("/api/tasks/{id}/move", tasks.Move)

		r.Get("/api/projects/{id}/notes", notes.List)
		r.Post("/api/projects/{id}/notes", notes.Create)
		r.Patch("/api/notes/{id}", notes.Patch)
		r.Delete("/api/notes/{id}", notes.Delete)

		r.Get("/api/projects/{id}/resources", resources.List)
		r.Post("/api/projects/{id}/resources", resources.Create)
		r.Delete("/api/resources/{id}", resources.Delete)

		r.Get("/api/projects/{id}/chat", chat.List)
		r.Post("/api/projects/{id}/chat", chat.Create)

		r.Get("/api/invoices", invoices.List)
		r.Post("/api/invoices", invoices.Create)
		r.Post("/api/invoices/preview", invoices.Preview)
		r.Post("/api/invoices/pdf", invoices.PDF)
		r.Get("/api/invoices/{id}", invoices.Get)
		r.Delete("/api/invoices/{id}", invoices.Delete)

		r.Post("/api/stripe/create-checkout", payments.CreateCheckout)
		r.Post("/api/ai/plan", plan.Create)

		r.Get("/api/settings", settings.Get)
		r.Put("/api/settings", settings.Put)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   getVersion(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func getVersion() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}
