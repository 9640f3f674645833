package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/config"
	"github.com/devpilot-hq/devpilot/internal/logger"
	"github.com/devpilot-hq/devpilot/internal/middleware"
	"github.com/devpilot-hq/devpilot/internal/store"
)

const defaultOwnerID = "00000000-0000-0000-0000-000000000001"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var ownerID string
	var printToken bool

	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Load sample clients, projects, tasks and invoices for one owner",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(ownerID); err != nil {
				return fmt.Errorf("owner must be a uuid: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
				return err
			}

			if printToken {
				token, err := devToken(cfg.JWTSecret, ownerID, time.Now().Add(30*24*time.Hour))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}

			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			s := seeder{
				clients:  store.NewClientStore(db),
				projects: store.NewProjectStore(db),
				tasks:    store.NewTaskStore(db),
				settings: store.NewCompanySettingsStore(db),
				billing: &billing.Service{
					Invoices: store.NewInvoiceStore(db),
					Numbers:  billing.NumberGenerator{Prefix: cfg.InvoiceNumberPrefix},
				},
			}
			return s.run(middleware.WithOwner(cmd.Context(), ownerID))
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", defaultOwnerID, "owner id the sample data belongs to")
	cmd.Flags().BoolVar(&printToken, "print-token", false, "print a development access token for the owner and exit")
	return cmd
}

// devToken signs a token the API accepts for ownerID.
func devToken(secret, ownerID string, expires time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("AUTH_JWT_SECRET is not set")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   ownerID,
		"email": "dev@devpilot.local",
		"exp":   expires.Unix(),
	})
	return token.SignedString([]byte(secret))
}

type seeder struct {
	clients  *store.ClientStore
	projects *store.ProjectStore
	tasks    *store.TaskStore
	settings *store.CompanySettingsStore
	billing  *billing.Service
}

type sampleTask struct {
	title    string
	status   string
	estimate string
}

type sampleProject struct {
	name      string
	client    int
	status    string
	techStack []string
	tasks     []sampleTask
}

var sampleClients = []store.ClientInput{
	{
		Name:           "Acme Corp",
		Email:          strPtr("billing@acme.example"),
		BillingAddress: &store.Address{Street: "100 Market St", City: "San Francisco", State: "CA", Zip: "94105", Country: "US"},
	},
	{Name: "Globex Ltd", Email: strPtr("ap@globex.example"), DefaultPaymentTerms: intPtr(14)},
	{Name: "Initech", Phone: strPtr("+1 555 0100")},
}

var sampleProjects = []sampleProject{
	{
		name: "Marketing site", client: 0, techStack: []string{"Next.js", "Tailwind"},
		tasks: []sampleTask{
			{title: "Wireframes", status: "done", estimate: "6"},
			{title: "Landing page build", status: "in_progress", estimate: "12"},
			{title: "SEO review", status: "todo", estimate: "3"},
		},
	},
	{
		name: "Inventory API", client: 1, techStack: []string{"Go", "PostgreSQL"},
		tasks: []sampleTask{
			{title: "Schema design", status: "done", estimate: "4"},
			{title: "Stock endpoints", status: "review", estimate: "10"},
			{title: "Bulk import", status: "backlog"},
		},
	},
	{
		name: "Support portal", client: 2, techStack: []string{"React"},
		tasks: []sampleTask{
			{title: "Ticket list", status: "todo", estimate: "8"},
		},
	},
	{
		name: "Legacy migration", client: 1, status: store.ProjectStatusCompleted,
		tasks: []sampleTask{
			{title: "Data export", status: "done", estimate: "5"},
		},
	},
}

func (s seeder) run(ctx context.Context) error {
	clientIDs := make([]string, 0, len(sampleClients))
	for _, input := range sampleClients {
		client, err := s.clients.Create(ctx, input)
		if err != nil {
			return fmt.Errorf("create client %s: %w", input.Name, err)
		}
		clientIDs = append(clientIDs, client.ID)
	}

	projectIDs := make([]string, 0, len(sampleProjects))
	taskCount := 0
	for _, sample := range sampleProjects {
		project, err := s.projects.Create(ctx, store.ProjectInput{
			ClientID:  &clientIDs[sample.client],
			Name:      sample.name,
			TechStack: sample.techStack,
			Status:    sample.status,
		})
		if err != nil {
			return fmt.Errorf("create project %s: %w", sample.name, err)
		}
		projectIDs = append(projectIDs, project.ID)

		for _, task := range sample.tasks {
			input := store.CreateTaskInput{ProjectID: project.ID, Title: task.title, Status: task.status}
			if task.estimate != "" {
				hours := decimal.RequireFromString(task.estimate)
				input.EstimateHours = &hours
			}
			if _, err := s.tasks.Create(ctx, input); err != nil {
				return fmt.Errorf("create task %s: %w", task.title, err)
			}
			taskCount++
		}
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	due := today.AddDate(0, 0, 30)
	drafts := []billing.DraftInput{
		{
			ClientID:  clientIDs[0],
			ProjectID: &projectIDs[0],
			IssueDate: today,
			DueDate:   &due,
			TaxRate:   decimal.NewFromInt(8),
			Items: []billing.DraftItem{
				{Description: "Design", Qty: decimal.NewFromInt(10), Rate: decimal.NewFromInt(80)},
				{Description: "Development", Qty: decimal.NewFromInt(20), Rate: decimal.NewFromInt(50)},
			},
		},
		{
			ClientID:  clientIDs[1],
			ProjectID: &projectIDs[1],
			IssueDate: today,
			Discount:  decimal.NewFromInt(50),
			Notes:     "Thanks for the quick turnaround.",
			Items: []billing.DraftItem{
				{Description: "API development", Qty: decimal.NewFromInt(14), Rate: decimal.NewFromInt(95)},
			},
		},
	}
	for _, draft := range drafts {
		if _, err := s.billing.CreateDraft(ctx, draft); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
	}

	if _, err := s.settings.Upsert(ctx, store.CompanySettingsInput{
		CompanyName:       strPtr("DevPilot Studio"),
		DefaultHourlyRate: decimal.NewFromInt(85),
		InvoiceFooter:     strPtr("Payment due within 30 days."),
		BankName:          strPtr("First Example Bank"),
		AccountHolder:     strPtr("DevPilot Studio LLC"),
		AccountNumber:     strPtr("000123456789"),
	}); err != nil {
		return fmt.Errorf("save company settings: %w", err)
	}

	log.Info().
		Int("clients", len(clientIDs)).
		Int("projects", len(projectIDs)).
		Int("tasks", taskCount).
		Int("invoices", len(drafts)).
		Msg("sample data loaded")
	return nil
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
