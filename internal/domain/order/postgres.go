package order

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRepository provides durable event sourcing persistence. Every saved
// event is also written to the transactional outbox in the same transaction,
// for the events relay to publish.
type PostgresRepository struct {
	pool *pgxpool.Pool
	// topic is the Kafka topic relayed outbox entries are published to.
	topic  string
	logger *zap.Logger
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool, topic string, logger *zap.Logger) *PostgresRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{pool: pool, topic: topic, logger: logger}
}

// Save persists new events for an aggregate
func (r *PostgresRepository) Save(ctx context.Context, agg *Aggregate) error {
	if len(agg.Changes()) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, event := range agg.Changes() {
		if err := r.insertEvent(ctx, tx, event); err != nil {
			return err
		}
		if err := r.insertOutbox(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	agg.ClearChanges()
	return nil
}

func (r *PostgresRepository) insertEvent(ctx context.Context, tx pgx.Tx, event *Event) error {
	query := `
		INSERT INTO order_events
		(event_id, aggregate_id, event_type, event_data, status, note, version, patient_id, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.Exec(ctx, query,
		event.ID,
		event.AggregateID,
		event.EventType,
		event.EventData,
		event.Status,
		event.Note,
		event.Version,
		event.PatientID,
		event.CorrelationID,
	)
	return err
}

func (r *PostgresRepository) insertOutbox(ctx context.Context, tx pgx.Tx, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	query := `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, kafka_topic, kafka_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, query,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		payload,
		r.topic,
		event.AggregateID,
	)
	return err
}

// Load retrieves an aggregate by ID
func (r *PostgresRepository) Load(ctx context.Context, id string) (*Aggregate, error) {
	events, err := r.GetEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}

	agg := NewAggregate(id)
	agg.LoadFromHistory(events)
	return agg, nil
}

// GetEvents retrieves all events for an aggregate
func (r *PostgresRepository) GetEvents(ctx context.Context, aggregateID string) ([]*Event, error) {
	query := `
		SELECT event_id, aggregate_id, event_type, event_data, status, note, version, timestamp, patient_id, correlation_id
		FROM order_events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`

	rows, err := r.pool.Query(ctx, query, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{AggregateType: "Order"}
		err := rows.Scan(
			&e.ID, &e.AggregateID, &e.EventType, &e.EventData, &e.Status,
			&e.Note, &e.Version, &e.Timestamp, &e.PatientID, &e.CorrelationID,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListIDs returns all aggregate ids with at least one event.
func (r *PostgresRepository) ListIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT aggregate_id FROM order_events ORDER BY aggregate_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
