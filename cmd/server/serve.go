package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"contractor-backend/internal/artifacts"
	"contractor-backend/internal/auth"
	"contractor-backend/internal/cache"
	"contractor-backend/internal/config"
	"contractor-backend/internal/database"
	"contractor-backend/internal/db"
	"contractor-backend/internal/events"
	"contractor-backend/internal/handlers"
	"contractor-backend/internal/health"
	apphttp "contractor-backend/internal/http"
	"contractor-backend/internal/logger"
	"contractor-backend/internal/middleware"
	"contractor-backend/internal/models"
	"contractor-backend/internal/notify"
	"contractor-backend/internal/payments"
	"contractor-backend/internal/render"
	"contractor-backend/internal/repositories"
	"contractor-backend/internal/services"
	"contractor-backend/internal/storage"
	"contractor-backend/migrations"

	"github.com/spf13/cobra"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("server")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.Name).Msg("Connected to PostgreSQL")

	if !skipMigrations {
		if err := database.NewMigrator(pool, migrations.FS).RunMigrations(ctx); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	// Redis is optional: profile cache and render locks degrade to no-ops
	var redisClient *cache.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, continuing without cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
	}

	objects, err := storage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}

	// Repositories
	docRepo := repositories.NewDocumentRepository(pool)
	projectRepo := repositories.NewProjectRepository(pool)
	profileRepo := repositories.NewBusinessProfileRepository(pool)
	paymentEventRepo := repositories.NewPaymentEventRepository(pool)

	// Collaborators
	profiles := services.NewProfileService(profileRepo, redisClient, fallbackProfile(cfg))
	renderer := render.NewPDFRenderer(cfg.Render.Enabled, cfg.Render.CurrencySign)
	artifactSvc := artifacts.NewService(docRepo, objects, renderer, profiles, redisClient, cfg.Render.Timeout)
	mailer := notify.NewSMTPMailer(notify.SMTPOptions{
		Enabled:  cfg.Mail.Enabled,
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
	registry := payments.NewRegistry(cfg.Payments.Provider,
		payments.NewStripeProvider(payments.StripeOptions{
			SecretKey:     cfg.Payments.Stripe.SecretKey,
			WebhookSecret: cfg.Payments.Stripe.WebhookSecret,
			SuccessURL:    cfg.Payments.Stripe.SuccessURL,
			CancelURL:     cfg.Payments.Stripe.CancelURL,
		}),
		payments.NewRazorpayProvider(payments.RazorpayOptions{
			KeyID:         cfg.Payments.Razorpay.KeyID,
			KeySecret:     cfg.Payments.Razorpay.KeySecret,
			WebhookSecret: cfg.Payments.Razorpay.WebhookSecret,
		}),
	)
	hub := events.NewHub()
	defer hub.Close()

	// Services
	terms := cfg.Invoice.PaymentTermsDays
	documentService := services.NewDocumentService(docRepo, artifactSvc, mailer, profiles, hub, terms)
	conversionService := services.NewConversionService(docRepo, projectRepo, hub, terms)
	if cfg.Render.WarmOnWrite && renderer.Available() {
		warmer := artifacts.NewWarmer(artifactSvc, cfg.Render.WarmWorkers, 64)
		defer warmer.Close()
		documentService.WithWarmer(warmer)
		conversionService.WithWarmer(warmer)
	}
	paymentService := services.NewPaymentService(docRepo, registry, cfg.Payments.Currency)
	reconciliationService := services.NewReconciliationService(registry, docRepo, paymentEventRepo, artifactSvc, hub)

	collector := services.NewMetricsCollector(docRepo, services.NewOverdueService(docRepo, artifactSvc),
		cfg.Jobs.MetricsInterval, cfg.Jobs.OverdueSweepInterval)
	collector.Start(ctx)
	defer collector.Stop()

	// Handlers
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)
	healthChecker := health.NewHealthChecker(pool, redisClient, map[string]health.Capability{
		"renderer": renderer,
		"mailer":   mailer,
		"payments": registry,
	})

	router := apphttp.NewRouter(
		handlers.NewDocumentHandler(documentService, models.DocumentTypeEstimate),
		handlers.NewDocumentHandler(documentService, models.DocumentTypeInvoice),
		handlers.NewDocumentHandler(documentService, models.DocumentTypeChangeOrder),
		handlers.NewConversionHandler(conversionService),
		handlers.NewPaymentHandler(paymentService, reconciliationService, registry),
		handlers.NewProfileHandler(profiles),
		handlers.NewEventsHandler(hub),
		handlers.NewHealthHandler(healthChecker),
		middleware.NewAuthMiddleware(jwtManager),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apphttp.Wrap(router, middleware.NewCORS(cfg)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Bool("renderer", renderer.Available()).
		Bool("mailer", mailer.Available()).
		Bool("payments", registry.Available()).
		Bool("redis", redisClient.Enabled()).
		Msg("Server starting")

	errCh := make(chan error, 1)
	go func() {
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

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

func fallbackProfile(cfg *config.Config) models.BusinessProfile {
	return models.BusinessProfile{
		Name:          cfg.Business.Name,
		Address:       cfg.Business.Address,
		Phone:         cfg.Business.Phone,
		Email:         cfg.Business.Email,
		LicenseNumber: cfg.Business.LicenseNumber,
	}
}
