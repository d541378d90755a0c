package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dukerupert/tally/internal"
	"github.com/dukerupert/tally/internal/billing"
	"github.com/dukerupert/tally/internal/email"
	"github.com/dukerupert/tally/internal/events"
	"github.com/dukerupert/tally/internal/handler/api"
	"github.com/dukerupert/tally/internal/handler/webhook"
	"github.com/dukerupert/tally/internal/middleware"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/dukerupert/tally/internal/router"
	"github.com/dukerupert/tally/internal/service"
	"github.com/dukerupert/tally/internal/telemetry"
	"github.com/dukerupert/tally/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for the application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	store := repository.NewStore(pool)

	// Initialize Prometheus metrics
	telemetry.InitBusinessMetrics("tally")
	metrics := middleware.NewMetrics("tally")

	// Event bus: NATS when configured, in-process otherwise
	var bus events.Bus
	if cfg.NATS.URL != "" {
		natsBus, err := events.NewNATSBus(cfg.NATS.URL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsBus.Close()
		bus = natsBus
		logger.Info("NATS event bus connected", "url", cfg.NATS.URL)
	} else {
		chanBus := events.NewChanBus()
		defer chanBus.Close()
		bus = chanBus
		logger.Info("Using in-process event bus")
	}

	// Initialize services
	accountService := service.NewAccountService(store, logger, cfg.Reconciler.LateFeeCents)
	recordService := service.NewRecordService(store, accountService, bus, logger, cfg.Reconciler.CancellationPolicy)

	// Stripe invoicing provider (optional)
	var provider billing.Provider
	if cfg.Stripe.SecretKey != "" {
		stripeProvider, err := billing.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		if err != nil {
			return fmt.Errorf("failed to initialize Stripe provider: %w", err)
		}
		provider = stripeProvider
		logger.Info("Stripe invoicing provider initialized")
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, invoice issuing disabled")
	}

	// Email delivery: Postmark when a token is set, SMTP otherwise
	var emailService *email.Service
	var sender email.Sender
	switch {
	case cfg.Email.PostmarkToken != "":
		sender = email.NewPostmarkSender(cfg.Email.PostmarkToken)
		logger.Info("Email delivery via Postmark")
	case cfg.Email.Host != "":
		sender = email.NewSMTPSender(&email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     int(cfg.Email.Port),
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		}, logger)
		logger.Info("Email delivery via SMTP", "host", cfg.Email.Host)
	default:
		logger.Warn("No email transport configured, billing notifications disabled")
	}
	if sender != nil {
		emailService, err = email.NewService(sender, cfg.Email.From, cfg.Email.FromName)
		if err != nil {
			return fmt.Errorf("failed to initialize email service: %w", err)
		}
	}

	dispatcher := service.NewDispatcher(store, provider, emailService, logger)

	// Background worker: event-driven notifications plus the overdue sweep
	w := worker.NewWorker(bus, dispatcher, recordService, worker.Config{
		SweepInterval: cfg.Reconciler.SweepInterval,
	}, logger)
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker stopped", "error", err)
		}
	}()

	// HTTP surface
	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithRequestLogger(logger),
		metrics.Middleware,
	)

	accountsHandler := api.NewAccountsHandler(accountService, logger)
	accountsHandler.RegisterRoutes(r)

	recordsHandler := api.NewBillingRecordsHandler(recordService, logger)
	recordsHandler.RegisterRoutes(r)

	stripeHandler := webhook.NewStripeHandler(provider, recordService, logger, webhook.StripeWebhookConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
	})
	r.Post("/webhooks/stripe", stripeHandler.HandleWebhook)

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := pool.Ping(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
