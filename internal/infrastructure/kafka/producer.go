// Package kafka provides the event streaming layer for order events and
// refill alerts, built on franz-go.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers []string
	// ClientID identifies this producer to the brokers
	ClientID string
	// LingerMS batches records for up to this many milliseconds
	LingerMS int
	// BatchMaxBytes caps the size of a produce batch
	BatchMaxBytes int32
	// RequestTimeout bounds each produce request
	RequestTimeout time.Duration
}

// DefaultProducerConfig returns defaults tuned for the chat workload, where
// event volume follows conversation turns rather than a firehose.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:        []string{"localhost:9092"},
		ClientID:       "rxchat-producer",
		LingerMS:       5,
		BatchMaxBytes:  1 << 20,
		RequestTimeout: 10 * time.Second,
	}
}

// Producer publishes order lifecycle events and refill alerts
type Producer struct {
	client *kgo.Client
	logger *zap.Logger

	produced int64
	failed   int64
}

// NewProducer creates a producer connected to the given brokers
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.ProducerBatchMaxBytes(cfg.BatchMaxBytes),
		kgo.ProduceRequestTimeout(cfg.RequestTimeout),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(5),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{client: client, logger: logger}, nil
}

// Produce publishes a single record and waits for broker acknowledgement
func (p *Producer) Produce(ctx context.Context, topic, key string, value []byte) error {
	record := &kgo.Record{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: traceHeaders(ctx),
	}

	var wg sync.WaitGroup
	var produceErr error

	wg.Add(1)
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		defer wg.Done()
		produceErr = err
	})
	wg.Wait()

	if produceErr != nil {
		atomic.AddInt64(&p.failed, 1)
		return fmt.Errorf("produce to %s failed: %w", topic, produceErr)
	}

	atomic.AddInt64(&p.produced, 1)
	return nil
}

// ProduceAsync publishes a record without waiting for acknowledgement.
// Failures are logged and counted but not surfaced to the caller.
func (p *Producer) ProduceAsync(ctx context.Context, topic, key string, value []byte) {
	record := &kgo.Record{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: traceHeaders(ctx),
	}

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			atomic.AddInt64(&p.failed, 1)
			p.logger.Error("async produce failed",
				zap.String("topic", r.Topic),
				zap.Error(err))
			return
		}
		atomic.AddInt64(&p.produced, 1)
	})
}

// Flush blocks until all buffered records are sent
func (p *Producer) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

// Close flushes and releases the underlying client
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("flush on close failed", zap.Error(err))
	}
	p.client.Close()
}

// ProducerStats reports lifetime produce counts
type ProducerStats struct {
	Produced int64
	Failed   int64
}

// Stats returns current producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		Produced: atomic.LoadInt64(&p.produced),
		Failed:   atomic.LoadInt64(&p.failed),
	}
}

// traceHeaders carries the current trace context into record headers so
// downstream consumers can continue the span
func traceHeaders(ctx context.Context) []kgo.RecordHeader {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]kgo.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return headers
}
