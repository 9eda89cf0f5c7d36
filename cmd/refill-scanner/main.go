// Package main provides the refill scanner service entry point. It sweeps
// patient order histories on an interval and publishes refill alerts.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/catalog"
	"github.com/pharmaops/go-rxchat/internal/config"
	"github.com/pharmaops/go-rxchat/internal/infrastructure/kafka"
	"github.com/pharmaops/go-rxchat/internal/reasoning"
	"github.com/pharmaops/go-rxchat/internal/refill"
	"github.com/pharmaops/go-rxchat/pkg/workerpool"
)

// RefillAlert is the message published for each medicine that needs action
type RefillAlert struct {
	PatientID     string    `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	Medicine      string    `json:"medicine"`
	DaysRemaining int       `json:"days_remaining"`
	Action        string    `json:"action"`
	Reason        string    `json:"reason"`
	GeneratedAt   time.Time `json:"generated_at"`
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Patient records and order history live behind the chat API; reading
	// them over HTTP keeps the sweep in step with what conversations wrote.
	patients := catalog.NewHTTPPatientStore(cfg.ChatAPIURL, cfg.APIKey)

	// Without an API key the predictor runs its deterministic path only
	var svc reasoning.Service
	if cfg.OpenAIAPIKey != "" {
		lc, err := reasoning.NewLangChainService(reasoning.LangChainConfig{
			Model:   cfg.OpenAIModel,
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		}, logger)
		if err != nil {
			logger.Fatal("reasoning service init failed", zap.Error(err))
		}
		svc = lc
	}
	predictor := refill.NewPredictor(svc, logger)

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
	producerCfg.ClientID = "rxchat-refill-scanner"

	producer, err := kafka.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	scan := func(ctx context.Context, task *workerpool.Task) (interface{}, error) {
		patient := task.Payload.(catalog.Patient)
		now := time.Now()

		due, err := patients.GetMedicinesNeedingRefill(ctx, patient.ID, now)
		if err != nil {
			return nil, err
		}
		if len(due) == 0 {
			return 0, nil
		}

		published := 0
		for _, pred := range predictor.Predict(ctx, patient.Name, due) {
			if pred.Action == refill.ActionNone {
				continue
			}
			alert := RefillAlert{
				PatientID:     patient.ID,
				PatientName:   patient.Name,
				Medicine:      pred.Medicine,
				DaysRemaining: pred.DaysRemaining,
				Action:        string(pred.Action),
				Reason:        pred.Reason,
				GeneratedAt:   now,
			}
			payload, err := json.Marshal(alert)
			if err != nil {
				return published, err
			}
			if err := producer.Produce(ctx, kafka.TopicRefillAlerts, patient.ID, payload); err != nil {
				return published, err
			}
			published++
		}
		return published, nil
	}

	poolCfg := workerpool.DefaultConfig()
	pool, err := workerpool.New(poolCfg, scan, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	pool.Start()

	// Drain results so the channel never fills
	go func() {
		for range pool.Results() {
		}
	}()

	sweep := func() {
		all, err := patients.ListPatients(ctx)
		if err != nil {
			logger.Error("patient listing failed", zap.Error(err))
			return
		}
		for _, patient := range all {
			if err := pool.Submit(&workerpool.Task{ID: patient.ID, Payload: patient}); err != nil {
				logger.Warn("scan submit failed",
					zap.String("patient_id", patient.ID),
					zap.Error(err))
			}
		}
		logger.Info("refill sweep dispatched", zap.Int("patients", len(all)))
	}

	logger.Info("starting refill scanner",
		zap.Duration("interval", cfg.ScanInterval),
		zap.Strings("brokers", cfg.KafkaBrokers))
	sweep()

	ticker := time.NewTicker(cfg.ScanInterval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-sigChan:
			logger.Info("shutting down")
			cancel()
			pool.Stop()
			logger.Info("refill scanner stopped")
			return
		}
	}
}
