package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/middleware"
	"github.com/devpilot-hq/devpilot/internal/planner"
	"github.com/devpilot-hq/devpilot/internal/store"
)

const (
	testSecret = "test-jwt-secret"
	ownerA     = "11111111-1111-1111-1111-111111111111"
	ownerB     = "22222222-2222-2222-2222-222222222222"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func signedToken(t *testing.T, ownerID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": ownerID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func ownerCtx(ownerID string) context.Context {
	return middleware.WithOwner(context.Background(), ownerID)
}

func owner(ctx context.Context) (string, error) {
	id := middleware.OwnerFromContext(ctx)
	if id == "" {
		return "", store.ErrNoOwner
	}
	return id, nil
}

type idSource struct {
	mu sync.Mutex
	n  int
}

func (s *idSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", s.n)
}

var ids = &idSource{}

type fakeClients struct {
	mu      sync.Mutex
	clients map[string]store.Client
}

func newFakeClients() *fakeClients { return &fakeClients{clients: map[string]store.Client{}} }

func (f *fakeClients) List(ctx context.Context) ([]store.Client, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Client{}
	for _, c := range f.clients {
		if c.UserID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeClients) GetByID(ctx context.Context, id string) (*store.Client, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok || c.UserID != ownerID {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *fakeClients) Create(ctx context.Context, input store.ClientInput) (*store.Client, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	terms := store.DefaultPaymentTerms
	if input.DefaultPaymentTerms != nil {
		terms = *input.DefaultPaymentTerms
	}
	c := store.Client{
		ID:                  ids.next(),
		UserID:              ownerID,
		Name:                input.Name,
		Email:               input.Email,
		Phone:               input.Phone,
		BillingAddress:      input.BillingAddress,
		DefaultPaymentTerms: terms,
	}
	f.mu.Lock()
	f.clients[c.ID] = c
	f.mu.Unlock()
	return &c, nil
}

func (f *fakeClients) Update(ctx context.Context, id string, input store.ClientInput) (*store.Client, error) {
	c, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = input.Name
	c.Email = input.Email
	c.Phone = input.Phone
	c.BillingAddress = input.BillingAddress
	if input.DefaultPaymentTerms != nil {
		c.DefaultPaymentTerms = *input.DefaultPaymentTerms
	}
	f.mu.Lock()
	f.clients[id] = *c
	f.mu.Unlock()
	return c, nil
}

func (f *fakeClients) Delete(ctx context.Context, id string) error {
	if _, err := f.GetByID(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.clients, id)
	f.mu.Unlock()
	return nil
}

type fakeProjects struct {
	mu       sync.Mutex
	projects map[string]store.Project
}

func newFakeProjects() *fakeProjects { return &fakeProjects{projects: map[string]store.Project{}} }

func (f *fakeProjects) add(p store.Project) store.Project {
	if p.ID == "" {
		p.ID = ids.next()
	}
	if p.Status == "" {
		p.Status = store.ProjectStatusActive
	}
	if p.TechStack == nil {
		p.TechStack = []string{}
	}
	f.mu.Lock()
	f.projects[p.ID] = p
	f.mu.Unlock()
	return p
}

func (f *fakeProjects) List(ctx context.Context, status string) ([]store.Project, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Project{}
	for _, p := range f.projects {
		if p.UserID == ownerID && (status == "" || p.Status == status) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeProjects) GetByID(ctx context.Context, id string) (*store.Project, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok || p.UserID != ownerID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProjects) Create(ctx context.Context, input store.ProjectInput) (*store.Project, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	p := f.add(store.Project{
		UserID:      ownerID,
		ClientID:    input.ClientID,
		Name:        input.Name,
		Description: input.Description,
		TechStack:   input.TechStack,
		RepoURL:     input.RepoURL,
		Status:      input.Status,
	})
	return &p, nil
}

func (f *fakeProjects) Update(ctx context.Context, id string, input store.ProjectInput) (*store.Project, error) {
	p, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.ClientID = input.ClientID
	p.Name = input.Name
	p.Description = input.Description
	p.TechStack = input.TechStack
	p.RepoURL = input.RepoURL
	p.Status = input.Status
	f.add(*p)
	return p, nil
}

func (f *fakeProjects) Delete(ctx context.Context, id string) error {
	if _, err := f.GetByID(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.projects, id)
	f.mu.Unlock()
	return nil
}

type fakeTasks struct {
	mu    sync.Mutex
	tasks map[string]store.Task
}

func newFakeTasks() *fakeTasks { return &fakeTasks{tasks: map[string]store.Task{}} }

func (f *fakeTasks) add(task store.Task) store.Task {
	if task.ID == "" {
		task.ID = ids.next()
	}
	f.mu.Lock()
	f.tasks[task.ID] = task
	f.mu.Unlock()
	return task
}

func (f *fakeTasks) GetByID(ctx context.Context, id string) (*store.Task, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok || task.UserID != ownerID {
		return nil, store.ErrNotFound
	}
	return &task, nil
}

func (f *fakeTasks) ListByProject(ctx context.Context, projectID string) ([]store.Task, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Task{}
	for _, task := range f.tasks {
		if task.UserID == ownerID && task.ProjectID == projectID {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (f *fakeTasks) Create(ctx context.Context, input store.CreateTaskInput) (*store.Task, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	task := f.add(store.Task{
		UserID:        ownerID,
		ProjectID:     input.ProjectID,
		Title:         input.Title,
		Description:   input.Description,
		Status:        input.Status,
		EstimateHours: input.EstimateHours,
	})
	return &task, nil
}

func (f *fakeTasks) Update(ctx context.Context, id string, input store.UpdateTaskInput) (*store.Task, error) {
	task, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Title = input.Title
	task.Description = input.Description
	task.EstimateHours = input.EstimateHours
	f.add(*task)
	return task, nil
}

func (f *fakeTasks) Move(ctx context.Context, id string, status string) (*store.Task, error) {
	task, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Status = status
	f.add(*task)
	return task, nil
}

func (f *fakeTasks) Delete(ctx context.Context, id string) error {
	if _, err := f.GetByID(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.tasks, id)
	f.mu.Unlock()
	return nil
}

type fakeInvoices struct {
	mu       sync.Mutex
	invoices map[string]store.Invoice
	pdfPaths map[string]string
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{invoices: map[string]store.Invoice{}, pdfPaths: map[string]string{}}
}

func (f *fakeInvoices) add(inv store.Invoice) store.Invoice {
	if inv.ID == "" {
		inv.ID = ids.next()
	}
	if inv.Currency == "" {
		inv.Currency = "USD"
	}
	f.mu.Lock()
	f.invoices[inv.ID] = inv
	f.mu.Unlock()
	return inv
}

// List mirrors the store: overdue and sent are split by due date before the
// limit applies.
func (f *fakeInvoices) List(ctx context.Context, filter store.InvoiceFilter) ([]store.Invoice, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Invoice{}
	for _, inv := range f.invoices {
		if inv.UserID != ownerID {
			continue
		}
		if filter.Status != "" && billing.EffectiveStatus(inv, filter.AsOf) != filter.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber > out[j].InvoiceNumber })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeInvoices) GetByID(ctx context.Context, id string) (*store.Invoice, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok || inv.UserID != ownerID {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (f *fakeInvoices) Delete(ctx context.Context, id string) error {
	if _, err := f.GetByID(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.invoices, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeInvoices) SetPDFPath(ctx context.Context, id string, path string) error {
	if _, err := f.GetByID(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	f.pdfPaths[id] = path
	f.mu.Unlock()
	return nil
}

type fakeBilling struct {
	invoices   *fakeInvoices
	lastDraft  billing.DraftInput
	createErr  error
	paymentURL string
	paymentErr error
}

func (f *fakeBilling) CreateDraft(ctx context.Context, input billing.DraftInput) (*store.Invoice, error) {
	f.lastDraft = input
	if f.createErr != nil {
		return nil, f.createErr
	}
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]billing.LineInput, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, billing.LineInput{Qty: item.Qty, Rate: item.Rate})
	}
	totals := billing.CalculateTotals(lines, input.TaxRate, input.Discount)
	clientID := input.ClientID
	inv := f.invoices.add(store.Invoice{
		UserID:        ownerID,
		ClientID:      &clientID,
		InvoiceNumber: "DP-2406-1001",
		IssueDate:     input.IssueDate,
		DueDate:       input.DueDate,
		Status:        billing.StatusDraft,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Discount:      totals.Discount,
		Total:         totals.Total,
	})
	return &inv, nil
}

func (f *fakeBilling) PreviewTotals(items []billing.DraftItem, taxRate, discount decimal.Decimal) billing.Totals {
	return (&billing.Service{}).PreviewTotals(items, taxRate, discount)
}

func (f *fakeBilling) RequestPayment(ctx context.Context, invoiceID string) (string, error) {
	if _, err := f.invoices.GetByID(ctx, invoiceID); err != nil {
		return "", err
	}
	return f.paymentURL, f.paymentErr
}

type fakeSettings struct {
	settings *store.CompanySettings
	last     store.CompanySettingsInput
}

func (f *fakeSettings) Get(ctx context.Context) (*store.CompanySettings, error) {
	if _, err := owner(ctx); err != nil {
		return nil, err
	}
	if f.settings == nil {
		return nil, store.ErrNotFound
	}
	return f.settings, nil
}

func (f *fakeSettings) Upsert(ctx context.Context, input store.CompanySettingsInput) (*store.CompanySettings, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.last = input
	f.settings = &store.CompanySettings{
		ID:                "settings-1",
		UserID:            ownerID,
		CompanyName:       input.CompanyName,
		DefaultHourlyRate: input.DefaultHourlyRate,
		InvoiceFooter:     input.InvoiceFooter,
		BankName:          input.BankName,
		AccountNumber:     input.AccountNumber,
		AccountHolder:     input.AccountHolder,
		AccountType:       input.AccountType,
		IBAN:              input.IBAN,
	}
	return f.settings, nil
}

type fakeNotes struct {
	mu    sync.Mutex
	notes map[string]store.ProjectNote
}

func newFakeNotes() *fakeNotes { return &fakeNotes{notes: map[string]store.ProjectNote{}} }

func (f *fakeNotes) List(ctx context.Context, projectID string, taskID string) ([]store.ProjectNote, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.ProjectNote{}
	for _, n := range f.notes {
		if n.UserID != ownerID || n.ProjectID != projectID {
			continue
		}
		if taskID != "" && (n.TaskID == nil || *n.TaskID != taskID) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNotes) Create(ctx context.Context, projectID string, input store.ProjectNoteInput) (*store.ProjectNote, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	n := store.ProjectNote{
		ID:         ids.next(),
		UserID:     ownerID,
		ProjectID:  projectID,
		Title:      input.Title,
		Content:    input.Content,
		Tags:       input.Tags,
		TaskID:     input.TaskID,
		ResourceID: input.ResourceID,
	}
	f.mu.Lock()
	f.notes[n.ID] = n
	f.mu.Unlock()
	return &n, nil
}

func (f *fakeNotes) GetByID(ctx context.Context, id string) (*store.ProjectNote, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	if !ok || n.UserID != ownerID {
		return nil, store.ErrNotFound
	}
	return &n, nil
}

func (f *fakeNotes) Update(ctx context.Context, id string, input store.ProjectNoteInput) (*store.ProjectNote, error) {
	n, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	n.Title = input.Title
	n.Content = input.Content
	n.Tags = input.Tags
	n.TaskID = input.TaskID
	n.ResourceID = input.ResourceID
	f.mu.Lock()
	f.notes[id] = *n
	f.mu.Unlock()
	return n, nil
}

func (f *fakeNotes) Delete(ctx context.Context, id string) error {
	if _, err := f.GetByID(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.notes, id)
	f.mu.Unlock()
	return nil
}

type fakeResources struct {
	mu        sync.Mutex
	resources map[string]store.ProjectResource
}

func newFakeResources() *fakeResources {
	return &fakeResources{resources: map[string]store.ProjectResource{}}
}

func (f *fakeResources) List(ctx context.Context, projectID string) ([]store.ProjectResource, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.ProjectResource{}
	for _, res := range f.resources {
		if res.UserID == ownerID && res.ProjectID == projectID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (f *fakeResources) Create(ctx context.Context, projectID string, input store.CreateProjectResourceInput) (*store.ProjectResource, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	res := store.ProjectResource{
		ID:          ids.next(),
		UserID:      ownerID,
		ProjectID:   projectID,
		Name:        input.Name,
		FileType:    input.FileType,
		FileSize:    input.FileSize,
		FileURL:     input.FileURL,
		StoragePath: input.StoragePath,
		TaskID:      input.TaskID,
	}
	f.mu.Lock()
	f.resources[res.ID] = res
	f.mu.Unlock()
	return &res, nil
}

func (f *fakeResources) Delete(ctx context.Context, id string) error {
	ownerID, err := owner(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.resources[id]
	if !ok || res.UserID != ownerID {
		return store.ErrNotFound
	}
	delete(f.resources, id)
	return nil
}

type fakeChat struct {
	mu       sync.Mutex
	messages []store.ProjectChatMessage
}

func (f *fakeChat) Create(ctx context.Context, input store.CreateProjectChatMessageInput) (*store.ProjectChatMessage, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := store.ProjectChatMessage{
		ID:         ids.next(),
		UserID:     ownerID,
		ProjectID:  input.ProjectID,
		Message:    input.Message,
		ResourceID: input.ResourceID,
		CreatedAt:  fixedNow.Add(time.Duration(len(f.messages)) * time.Minute),
	}
	f.messages = append(f.messages, msg)
	return &msg, nil
}

// List mirrors the store: newest first, strictly older than the cursor.
func (f *fakeChat) List(ctx context.Context, projectID string, limit int, beforeCreatedAt *time.Time, beforeID *string) ([]store.ProjectChatMessage, bool, error) {
	ownerID, err := owner(ctx)
	if err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.ProjectChatMessage{}
	for i := len(f.messages) - 1; i >= 0; i-- {
		msg := f.messages[i]
		if msg.UserID != ownerID || msg.ProjectID != projectID {
			continue
		}
		if beforeCreatedAt != nil && !msg.CreatedAt.Before(*beforeCreatedAt) {
			continue
		}
		out = append(out, msg)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

type fakeDashboard struct {
	counts store.DashboardCounts
}

func (f *fakeDashboard) Counts(ctx context.Context) (store.DashboardCounts, error) {
	if _, err := owner(ctx); err != nil {
		return store.DashboardCounts{}, err
	}
	return f.counts, nil
}

type fakePlanner struct {
	configured bool
	result     *planner.Result
	err        error
	idea       string
}

func (f *fakePlanner) Configured() bool { return f.configured }

func (f *fakePlanner) GeneratePlan(ctx context.Context, idea string) (*planner.Result, error) {
	f.idea = idea
	return f.result, f.err
}

type notifyCall struct {
	kind      string
	ownerID   string
	projectID string
	id        string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) record(kind, ownerID, projectID, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{kind: kind, ownerID: ownerID, projectID: projectID, id: id})
}

func (n *recordingNotifier) TaskCreated(o, p, id string)        { n.record("task_created", o, p, id) }
func (n *recordingNotifier) TaskMoved(o, p, id string)          { n.record("task_moved", o, p, id) }
func (n *recordingNotifier) ChatMessageCreated(o, p, id string) { n.record("chat_message_created", o, p, id) }
func (n *recordingNotifier) NoteChanged(o, p, id string)        { n.record("note_changed", o, p, id) }

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.kind)
	}
	return out
}

type testEnv struct {
	clients   *fakeClients
	projects  *fakeProjects
	tasks     *fakeTasks
	invoices  *fakeInvoices
	billing   *fakeBilling
	settings  *fakeSettings
	notes     *fakeNotes
	resources *fakeResources
	chat      *fakeChat
	dashboard *fakeDashboard
	planner   *fakePlanner
	notifier  *recordingNotifier
	router    http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	invoices := newFakeInvoices()
	env := &testEnv{
		clients:   newFakeClients(),
		projects:  newFakeProjects(),
		tasks:     newFakeTasks(),
		invoices:  invoices,
		billing:   &fakeBilling{invoices: invoices, paymentURL: "https://checkout.stripe.test/c/pay_123"},
		settings:  &fakeSettings{},
		notes:     newFakeNotes(),
		resources: newFakeResources(),
		chat:      &fakeChat{},
		dashboard: &fakeDashboard{},
		planner:   &fakePlanner{configured: true},
		notifier:  &recordingNotifier{},
	}
	env.router = NewRouter(Deps{
		Auth:      middleware.NewAuthenticator(testSecret),
		Clients:   env.clients,
		Projects:  env.projects,
		Tasks:     env.tasks,
		Invoices:  env.invoices,
		Billing:   env.billing,
		Settings:  env.settings,
		Notes:     env.notes,
		Resources: env.resources,
		Chat:      env.chat,
		Dashboard: env.dashboard,
		Planner:   env.planner,
		Notifier:  env.notifier,
	}, Options{Now: func() time.Time { return fixedNow }})
	return env
}

// do sends an authenticated request as ownerID. An empty ownerID sends none.
func (e *testEnv) do(t *testing.T, ownerID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if ownerID != "" {
		req.Header.Set("Authorization", "Bearer "+signedToken(t, ownerID))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func strPtr(s string) *string { return &s }
