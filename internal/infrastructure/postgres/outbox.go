// Package postgres provides the PostgreSQL side of the transactional outbox.
// Order events written by the repository are relayed to Kafka from here.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pharmaops/go-rxchat/internal/infrastructure/kafka"
	"github.com/pharmaops/go-rxchat/internal/observability/metrics"
)

// relayLockID is the advisory lock claimed by the active relay instance
const relayLockID = int64(742001)

// OutboxEntry is a pending event awaiting publication
type OutboxEntry struct {
	ID            int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	KafkaTopic    string
	KafkaKey      string
	CreatedAt     time.Time
	RetryCount    int
	LastError     *string
}

// RelayConfig holds relay tuning knobs
type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries before an entry is routed to the dead letter topic
	MaxRetries int
}

// DefaultRelayConfig returns defaults for conversational event volume
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:    50,
		PollInterval: 250 * time.Millisecond,
		MaxRetries:   5,
	}
}

// Publisher publishes a relayed entry to the event stream
type Publisher interface {
	Produce(ctx context.Context, topic, key string, value []byte) error
}

// Relay polls the outbox table and publishes pending entries
type Relay struct {
	pool      *pgxpool.Pool
	publisher Publisher
	config    RelayConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay creates an outbox relay
func NewRelay(pool *pgxpool.Pool, publisher Publisher, cfg RelayConfig, m *metrics.Metrics, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Relay{
		pool:      pool,
		publisher: publisher,
		config:    cfg,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("outbox-relay"),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start begins polling for pending entries
func (r *Relay) Start() {
	go r.loop()
	r.logger.Info("outbox relay started",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval))
}

// Stop drains the current batch and stops polling
func (r *Relay) Stop() {
	r.cancel()
	<-r.done
	r.logger.Info("outbox relay stopped")
}

func (r *Relay) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.relayBatch()
		}
	}
}

func (r *Relay) relayBatch() {
	ctx, span := r.tracer.Start(r.ctx, "outbox.relay_batch")
	defer span.End()

	// Only one relay instance publishes at a time
	var acquired bool
	if err := r.pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", relayLockID).Scan(&acquired); err != nil || !acquired {
		return
	}
	defer r.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", relayLockID)

	entries, err := r.fetchPending(ctx)
	if err != nil {
		r.logger.Error("failed to fetch outbox entries", zap.Error(err))
		span.RecordError(err)
		return
	}

	r.updatePendingGauge(ctx)

	if len(entries) == 0 {
		return
	}
	span.SetAttributes(attribute.Int("batch_size", len(entries)))

	for _, entry := range entries {
		if err := r.relayEntry(ctx, entry); err != nil {
			r.logger.Error("failed to relay outbox entry",
				zap.Int64("id", entry.ID),
				zap.String("event_type", entry.EventType),
				zap.Error(err))
		}
	}
}

func (r *Relay) fetchPending(ctx context.Context) ([]*OutboxEntry, error) {
	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       kafka_topic, kafka_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.pool.Query(ctx, query, r.config.MaxRetries, r.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []*OutboxEntry
	for rows.Next() {
		entry := &OutboxEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.AggregateID, &entry.AggregateType,
			&entry.EventType, &entry.Payload, &entry.KafkaTopic,
			&entry.KafkaKey, &entry.CreatedAt, &entry.RetryCount, &entry.LastError,
		); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *Relay) relayEntry(ctx context.Context, entry *OutboxEntry) error {
	ctx, span := r.tracer.Start(ctx, "outbox.relay_entry",
		trace.WithAttributes(
			attribute.Int64("entry_id", entry.ID),
			attribute.String("event_type", entry.EventType),
			attribute.String("aggregate_id", entry.AggregateID),
		))
	defer span.End()

	if err := r.publisher.Produce(ctx, entry.KafkaTopic, entry.KafkaKey, entry.Payload); err != nil {
		updateQuery := `
			UPDATE outbox
			SET retry_count = retry_count + 1, last_error = $1, updated_at = NOW()
			WHERE id = $2
		`
		if _, updateErr := r.pool.Exec(ctx, updateQuery, err.Error(), entry.ID); updateErr != nil {
			r.logger.Error("failed to record relay error", zap.Error(updateErr))
		}
		span.RecordError(err)
		return fmt.Errorf("publish: %w", err)
	}

	markQuery := `
		UPDATE outbox
		SET processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, markQuery, entry.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("mark processed: %w", err)
	}

	if r.metrics != nil {
		r.metrics.KafkaMessagesProduced.Inc()
	}
	r.logger.Debug("outbox entry relayed",
		zap.Int64("id", entry.ID),
		zap.String("topic", entry.KafkaTopic))

	return nil
}

// DrainDeadLetters wraps entries that exhausted their retries in a dead
// letter envelope, publishes them, and marks them processed.
func (r *Relay) DrainDeadLetters(ctx context.Context) (int64, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, kafka_topic,
		       kafka_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count >= $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.pool.Query(ctx, query, r.config.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		entry := &OutboxEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.AggregateID, &entry.EventType,
			&entry.Payload, &entry.KafkaTopic, &entry.KafkaKey,
			&entry.CreatedAt, &entry.RetryCount, &entry.LastError,
		); err != nil {
			continue
		}

		envelope, _ := json.Marshal(map[string]interface{}{
			"original_topic": entry.KafkaTopic,
			"event_type":     entry.EventType,
			"aggregate_id":   entry.AggregateID,
			"payload":        entry.Payload,
			"retry_count":    entry.RetryCount,
			"last_error":     entry.LastError,
			"created_at":     entry.CreatedAt,
		})

		if err := r.publisher.Produce(ctx, kafka.TopicDeadLetter, entry.KafkaKey, envelope); err != nil {
			r.logger.Error("failed to publish dead letter", zap.Error(err))
			continue
		}

		if _, err := r.pool.Exec(ctx, "UPDATE outbox SET processed_at = NOW() WHERE id = $1", entry.ID); err != nil {
			r.logger.Error("failed to mark dead letter", zap.Error(err))
			continue
		}
		count++
	}

	return count, rows.Err()
}

// CleanupProcessed deletes published entries older than the given age
func (r *Relay) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM outbox
		WHERE processed_at IS NOT NULL
		  AND processed_at < NOW() - $1::interval
	`

	result, err := r.pool.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *Relay) updatePendingGauge(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	var pending int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL").Scan(&pending); err != nil {
		return
	}
	r.metrics.OutboxPending.Set(float64(pending))
}
