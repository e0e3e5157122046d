package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gestipharm/gestipharm-backend/internal/stock/consumers"
	"github.com/gestipharm/gestipharm-backend/internal/stock/events"
	"github.com/gestipharm/gestipharm-backend/internal/stock/handler"
	"github.com/gestipharm/gestipharm-backend/internal/stock/repository"
	"github.com/gestipharm/gestipharm-backend/internal/stock/service"
	"github.com/gestipharm/gestipharm-backend/pkg/config"
	"github.com/gestipharm/gestipharm-backend/pkg/database"
	"github.com/gestipharm/gestipharm-backend/pkg/httputil"
	"github.com/gestipharm/gestipharm-backend/pkg/logger"
	"github.com/gestipharm/gestipharm-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(db)
	lotRepo := repository.NewLotRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	// Initialize services
	alertEngine := service.NewAlertEngine(productRepo, lotRepo, alertRepo, publisher, cfg.Stock, log)
	stockService := service.NewStockService(db, productRepo, lotRepo, movementRepo, alertEngine, publisher, cfg.Stock, log)

	// Initialize handlers
	lotHandler := handler.NewLotHandler(stockService, log)
	productHandler := handler.NewProductHandler(stockService, log)
	stockHandler := handler.NewStockHandler(stockService, log)
	movementHandler := handler.NewMovementHandler(stockService, log)
	alertHandler := handler.NewAlertHandler(alertEngine, log)
	orderHandler := handler.NewOrderHandler(stockService, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start catalog event consumer
	productConsumer, err := consumers.NewProductEventConsumer(rmq, productRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create product event consumer")
	}
	if err := productConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start product event consumer")
	}

	// Start the expiry sweep
	sweeper := service.NewExpirySweeper(lotRepo, alertEngine, cfg.Stock.ExpiryScanInterval, log)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.ActorMiddleware) // Extract acting user from headers
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Name", "X-User-Role"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/stock", func(r chi.Router) {
		// Lot routes
		r.Route("/lots", func(r chi.Router) {
			r.Post("/", lotHandler.Receive)
			r.Get("/{id}", lotHandler.Get)
			r.Post("/{id}/adjust", lotHandler.Adjust)
			r.Post("/{id}/withdraw", lotHandler.Withdraw)
		})

		// Product cache and product-scoped stock routes
		r.Get("/products", productHandler.List)
		r.Route("/products/{id}", func(r chi.Router) {
			r.Get("/", productHandler.Get)
			r.Get("/lots", lotHandler.ListByProduct)
			r.Get("/availability", stockHandler.Availability)
			r.Get("/availability/lots", stockHandler.AvailabilityByLot)
			r.Get("/plan", stockHandler.Plan)
		})

		// Ledger
		r.Get("/movements", movementHandler.List)

		// Orders
		r.Post("/orders", orderHandler.Commit)

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.Get("/unread-count", alertHandler.UnreadCount)
			r.Put("/read", alertHandler.MarkAllRead)
			r.Put("/{id}/read", alertHandler.MarkRead)
		})

		// Overview
		r.Get("/overview", stockHandler.Overview)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop the consumer and the sweeper
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
