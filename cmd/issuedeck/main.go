package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/issuedeck/issuedeck/internal/config"
	"github.com/issuedeck/issuedeck/internal/connectors"
	"github.com/issuedeck/issuedeck/internal/database"
	"github.com/issuedeck/issuedeck/internal/handlers"
	"github.com/issuedeck/issuedeck/internal/middleware"
	"github.com/issuedeck/issuedeck/internal/scheduler"
	"github.com/issuedeck/issuedeck/internal/services"
	"github.com/issuedeck/issuedeck/internal/tokens"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting issuedeck...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/webhook/*",
			"/auth/login",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	db, err := database.Connect(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Database connection established")

	// Run database migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize services
	reportService := services.NewReportService(db)
	integrationService := services.NewIntegrationService(db)
	syncEventService := services.NewSyncEventService(db)
	issueService := services.NewIssueService(db)

	summarizer := services.NewAISummarizer(cfg.SummarizerAPIKey, cfg.SummarizerURL,
		cfg.SummarizerModel, cfg.SummarizerTimeout)
	if cfg.SummarizerAPIKey == "" {
		log.Printf("Summarizer is DISABLED (no API key); using fallback titles")
	}
	clusteringService := services.NewClusteringService(db, summarizer, cfg.SummarizerTimeout)

	// Token store for OAuth refresh and API token lookups
	tokenStore := tokens.NewStore(db, cfg.Providers)

	// Register provider connectors
	registry := connectors.NewRegistry()
	registry.Register(connectors.NewCRMTicketConnector(tokenStore, cfg.Providers[database.ProviderCRMTicket].BaseURL))
	registry.Register(connectors.NewTrackerConnector(tokenStore, cfg.Providers[database.ProviderIssueTracker].BaseURL))
	registry.Register(connectors.NewChatLogConnector(tokenStore, cfg.Providers[database.ProviderChatLog].BaseURL))
	log.Printf("Connectors registered: %v", registry.Providers())

	// Sync scheduler
	syncScheduler := scheduler.New(integrationService, reportService, clusteringService,
		syncEventService, registry, cfg.Cadences, cfg.SchedulerTick, cfg.ShutdownGrace,
		cfg.MaxConcurrentSyncs)
	schedulerStop := make(chan struct{})
	schedulerDone := make(chan struct{})
	go func() {
		syncScheduler.Start(schedulerStop)
		close(schedulerDone)
	}()

	// Initialize handlers
	httpHandler := handlers.NewHTTPHandler()
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)
	webhookHandler := handlers.NewWebhookHandler(integrationService, reportService, clusteringService, syncEventService)
	syncHandler := handlers.NewSyncHandler(syncScheduler, integrationService, syncEventService)
	issuesHandler := handlers.NewIssuesHandler(issueService, reportService)
	eventsWSHandler := handlers.NewEventsWSHandler(syncEventService)

	// Set up HTTP server routes
	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	webhookHandler.SetupRoutes(mux)
	syncHandler.SetupRoutes(mux)
	issuesHandler.SetupRoutes(mux)
	eventsWSHandler.SetupRoutes(mux)

	// Wrap all routes with request id and CORS first, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Report webhook endpoint: http://localhost:%d/webhook/report/{integration_id}", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, cleaning up...")

	// Stop the scheduler first so in-flight syncs can drain
	close(schedulerStop)
	<-schedulerDone

	log.Println("Shutting down HTTP server...")
	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if err := database.Close(db); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}
