// Package main provides the chat API service entry point.
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
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/api/handlers"
	"github.com/pharmaops/go-rxchat/internal/api/middleware"
	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/config"
	"github.com/pharmaops/go-rxchat/internal/domain/order"
	"github.com/pharmaops/go-rxchat/internal/infrastructure/kafka"
	"github.com/pharmaops/go-rxchat/internal/observability/metrics"
	"github.com/pharmaops/go-rxchat/internal/observability/tracing"
	"github.com/pharmaops/go-rxchat/internal/orchestrator"
	"github.com/pharmaops/go-rxchat/internal/reasoning"
	"github.com/pharmaops/go-rxchat/internal/refill"
	"github.com/pharmaops/go-rxchat/internal/session"
	"github.com/pharmaops/go-rxchat/pkg/circuitbreaker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	// Tracing
	if cfg.TracingEnabled {
		tracingCfg := tracing.DefaultConfig("chat-api")
		tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint
		provider, err := tracing.Init(ctx, tracingCfg)
		if err != nil {
			logger.Warn("tracing init failed, continuing without export", zap.Error(err))
		} else {
			defer provider.Shutdown(context.Background())
		}
	}

	m := metrics.New()

	// Catalog and patients are seeded in memory
	store := catalog.NewMemoryStore(catalog.SeedMedicines())
	patients := catalog.NewMemoryPatientStore(catalog.SeedPatients())
	prices := catalog.DefaultPriceTable()

	// Sessions: Redis when configured, otherwise in-process
	var sessions session.Store
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL, 24*time.Hour)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		sessions = redisStore
		logger.Info("using redis session store")
	} else {
		sessions = session.NewMemoryStore()
		logger.Info("using in-memory session store")
	}

	// Orders: event-sourced Postgres with outbox when configured
	var repo order.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("database ping failed", zap.Error(err))
		}
		repo = order.NewPostgresRepository(pool, kafka.TopicOrderEvents, logger)
		logger.Info("using postgres order repository")
	} else {
		repo = order.NewMemoryRepository()
		logger.Info("using in-memory order repository")
	}

	// Reasoning service behind a circuit breaker
	svc, err := reasoning.NewLangChainService(reasoning.LangChainConfig{
		Model:   cfg.OpenAIModel,
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
	}, logger)
	if err != nil {
		logger.Fatal("reasoning service init failed", zap.Error(err))
	}
	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("reasoning"), logger)
	if err != nil {
		logger.Fatal("circuit breaker init failed", zap.Error(err))
	}
	breaker.ReportState(m.CircuitBreakerState.WithLabelValues("reasoning"))
	reasoner := reasoning.WithBreaker(svc, breaker)

	predictor := refill.NewPredictor(reasoner, logger)
	predictor.CountFallbacks(m.RefillFallbacks)

	engine := orchestrator.New(orchestrator.Deps{
		Reasoning: reasoner,
		Catalog:   store,
		Patients:  patients,
		Sessions:  sessions,
		Orders:    repo,
		Prices:    prices,
		Predictor: predictor,
		Metrics:   m,
		Logger:    logger,
	})

	chatHandler := handlers.NewChatHandler(engine, logger)
	orderHandler := handlers.NewOrderHandler(repo, logger)
	inventoryHandler := handlers.NewInventoryHandler(store, logger)
	refillHandler := handlers.NewRefillHandler(patients, predictor, logger)
	patientHandler := handlers.NewPatientHandler(patients, logger)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.SessionID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("chat-api"))

	r.Get("/health", healthHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(middleware.APIKeyAuth(map[string]string{cfg.APIKey: "env-client"}))
		}
		r.Mount("/chat", chatHandler.Routes())
		r.Mount("/orders", orderHandler.Routes())
		r.Mount("/inventory", inventoryHandler.Routes())
		r.Mount("/refills", refillHandler.Routes())
		r.Mount("/patients", patientHandler.Routes())
		r.Post("/webhook/warehouse", orderHandler.WarehouseWebhook)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting chat API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"chat-api","version":"1.0.0"}`)
}
