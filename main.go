package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"awards-api/internal/config"
	"awards-api/internal/container"
	"awards-api/internal/handler"
	"awards-api/internal/middleware"
	"awards-api/internal/repository"
	"awards-api/internal/service"
	"awards-api/pkg/database"
	"awards-api/pkg/logger"
	"awards-api/pkg/redis"
)

// Resources holds all resources that need cleanup
type Resources struct {
	db          *database.PostgresDB
	redisClient *redis.Client
	dispatcher  service.OutboxDispatcher
	server      *http.Server
	log         *logger.Logger
	mu          sync.Mutex
	closed      bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Stop the outbox dispatcher; in-flight entries finish or are reaped
	// by the next run
	if r.dispatcher != nil {
		if err := r.dispatcher.Stop(ctx); err != nil {
			r.log.WithError(err).Error("Failed to stop outbox dispatcher")
			errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
		}
	}

	// Close Redis connection
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close Redis connection")
			errs = append(errs, fmt.Errorf("Redis close: %w", err))
		}
	}

	// Close database connection pool
	if r.db != nil {
		r.db.Close()
		r.log.Info("Database connection pool closed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Starting awards-api server")

	// Create dependency injection container
	c, err := container.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	// Initialize database connection
	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize repositories and services
	nominationRepo := repository.NewNominationRepository(db)
	voteRepo := repository.NewVoteRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	targets := c.EnabledTargets()
	nominationService := service.NewNominationService(nominationRepo, targets, cfg.PublicSiteURL, log.Logger)
	votingService := service.NewVotingService(voteRepo, nominationRepo, c.RedisClient, targets, log.Logger)

	dispatcher := service.NewOutboxDispatcher(outboxRepo, c.Adapters, c.RedisClient, votingService, service.DispatcherConfig{
		Interval:        cfg.DispatcherInterval,
		BatchSize:       cfg.DispatcherBatchSize,
		SyncTimeout:     cfg.SyncTimeout,
		MaxAttempts:     cfg.MaxSyncAttempts,
		BackoffBase:     cfg.BackoffBase,
		BackoffCap:      cfg.BackoffCap,
		StaleClaimAfter: cfg.StaleClaimAfter,
	}, log.Named("outbox"))

	if err := dispatcher.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start outbox dispatcher")
	}

	// Setup router
	router := setupRouter(c, nominationService, votingService, dispatcher)

	// Create HTTP server
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Create resources manager for cleanup
	resources := &Resources{
		db:          db,
		redisClient: c.RedisClient,
		dispatcher:  dispatcher,
		server:      server,
		log:         log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container, nominationService *service.NominationService, votingService *service.VotingService, dispatcher service.OutboxDispatcher) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()

	r := chi.NewRouter()

	// Setup CORS middleware
	corsConfig := &middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}

	// Setup middlewares
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Create handlers
	healthHandler := handler.NewHealthHandler(c)
	nominationHandler := handler.NewNominationHandler(nominationService, votingService)
	votingHandler := handler.NewVotingHandler(votingService)
	outboxHandler := handler.NewOutboxHandler(dispatcher)

	// Health check (no auth required)
	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Post("/nominations", nominationHandler.Submit)
		r.Get("/nominations/{id}", nominationHandler.Get)
		r.Get("/nominations/{id}/votes", votingHandler.GetTotals)
		r.Post("/votes", votingHandler.CastVote)

		// Admin endpoints
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.AdminJWTSecret, log))

			r.Get("/nominations", nominationHandler.List)
			r.Post("/nominations", nominationHandler.CreateDraft)
			r.Post("/nominations/{id}/approve", nominationHandler.Approve)
			r.Post("/nominations/{id}/reject", nominationHandler.Reject)
			r.Put("/nominations/{id}/votes", votingHandler.AdjustVotes)

			r.Post("/outbox/dispatch", outboxHandler.Dispatch)
			r.Get("/outbox", outboxHandler.Status)
			r.Post("/outbox/{id}/retry", outboxHandler.Retry)

			r.Post("/reconcile", votingHandler.Reconcile)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"not_found","message":"Endpoint not found"}}`))
	})

	log.Info("Router configured successfully")
	return r
}
