package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/devpilot-hq/devpilot/internal/api"
	"github.com/devpilot-hq/devpilot/internal/automigrate"
	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/config"
	"github.com/devpilot-hq/devpilot/internal/logger"
	"github.com/devpilot-hq/devpilot/internal/middleware"
	"github.com/devpilot-hq/devpilot/internal/payments"
	"github.com/devpilot-hq/devpilot/internal/planner"
	"github.com/devpilot-hq/devpilot/internal/store"
	"github.com/devpilot-hq/devpilot/internal/webhook"
	"github.com/devpilot-hq/devpilot/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		log.Fatal().Err(err).Msg("invalid log configuration")
	}
	decimal.MarshalJSONWithoutQuotes = true

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := automigrate.Run(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()
	notifier := ws.NewNotifier(hub)

	invoices := store.NewInvoiceStore(db)
	billingService := &billing.Service{
		Invoices:  invoices,
		Processor: payments.NewCheckoutClient(cfg.Stripe.SecretKey, cfg.Stripe.APIBaseURL),
		Notifier:  notifier,
		Numbers:   billing.NumberGenerator{Prefix: cfg.InvoiceNumberPrefix},
		AppURL:    cfg.AppURL,
	}
	reconciler := webhook.NewReconciler(
		payments.NewVerifier(cfg.Stripe.WebhookSecret),
		billingService,
		webhook.NewEventLog(webhook.DefaultEventExpiry),
	)
	plans := planner.New(planner.Config{
		APIKey:      cfg.Planner.APIKey,
		BaseURL:     cfg.Planner.BaseURL,
		Model:       cfg.Planner.Model,
		Temperature: cfg.Planner.Temperature,
		Referer:     cfg.AppURL,
	})

	router := api.NewRouter(api.Deps{
		Auth:      middleware.NewAuthenticator(cfg.JWTSecret),
		Clients:   store.NewClientStore(db),
		Projects:  store.NewProjectStore(db),
		Tasks:     store.NewTaskStore(db),
		Invoices:  invoices,
		Billing:   billingService,
		Settings:  store.NewCompanySettingsStore(db),
		Notes:     store.NewProjectNoteStore(db),
		Resources: store.NewProjectResourceStore(db),
		Chat:      store.NewProjectChatStore(db),
		Dashboard: store.NewDashboardStore(db),
		Planner:   plans,
		Notifier:  notifier,
		Webhook:   webhook.NewHandler(reconciler),
		Hub:       hub,
	}, api.Options{AllowedOrigins: cfg.CORSAllowedOrigins})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("environment", cfg.Environment).
			Bool("payments", cfg.Stripe.SecretKey != "").
			Bool("planner", plans.Configured()).
			Msg("DevPilot API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
