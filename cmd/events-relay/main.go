// Package main provides the events relay service entry point. It publishes
// outbox entries written by the chat API to the orders.events topic.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/config"
	"github.com/pharmaops/go-rxchat/internal/infrastructure/kafka"
	"github.com/pharmaops/go-rxchat/internal/infrastructure/postgres"
	"github.com/pharmaops/go-rxchat/internal/observability/metrics"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Topics are created up front so the first relayed entry does not race
	// topic auto-creation settings.
	admin, err := kafka.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("kafka admin creation failed", zap.Error(err))
	}
	if err := admin.EnsureTopics(ctx, kafka.DefaultTopicConfigs()); err != nil {
		logger.Fatal("topic creation failed", zap.Error(err))
	}
	admin.Close()

	producerCfg := kafka.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producerCfg.ClientID = "rxchat-events-relay"

	producer, err := kafka.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()
	logger.Info("connected to kafka", zap.Strings("brokers", cfg.KafkaBrokers))

	m := metrics.New()

	relay := postgres.NewRelay(pool, producer, postgres.DefaultRelayConfig(), m, logger)
	relay.Start()

	// Periodic housekeeping for exhausted and already-published entries
	stopHousekeeping := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stopHousekeeping:
				return
			case <-ticker.C:
				if n, err := relay.DrainDeadLetters(ctx); err != nil {
					logger.Error("dead letter drain failed", zap.Error(err))
				} else if n > 0 {
					logger.Warn("entries moved to dead letter", zap.Int64("count", n))
				}
				if _, err := relay.CleanupProcessed(ctx, 7*24*time.Hour); err != nil {
					logger.Error("outbox cleanup failed", zap.Error(err))
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	close(stopHousekeeping)
	relay.Stop()
	logger.Info("events relay stopped")
}
