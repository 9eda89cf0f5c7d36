package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topic names used across the system
const (
	// TopicOrderEvents carries order aggregate events relayed from the outbox
	TopicOrderEvents = "orders.events"
	// TopicRefillAlerts carries refill reminders produced by the scanner
	TopicRefillAlerts = "refill.alerts"
	// TopicAuditTrail carries the audit log of agent decisions
	TopicAuditTrail = "audit.trail"
	// TopicDeadLetter receives entries that exhausted their retries
	TopicDeadLetter = "dead.letter"
)

// TopicConfig describes a topic to be created
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	RetentionMS       int64
}

// DefaultTopicConfigs returns the topics this system requires.
// Partition counts are sized for conversational traffic.
func DefaultTopicConfigs() []TopicConfig {
	week := int64(7 * 24 * time.Hour / time.Millisecond)
	month := int64(30 * 24 * time.Hour / time.Millisecond)

	return []TopicConfig{
		{Name: TopicOrderEvents, Partitions: 6, ReplicationFactor: 1, RetentionMS: month},
		{Name: TopicRefillAlerts, Partitions: 3, ReplicationFactor: 1, RetentionMS: week},
		{Name: TopicAuditTrail, Partitions: 3, ReplicationFactor: 1, RetentionMS: month},
		{Name: TopicDeadLetter, Partitions: 1, ReplicationFactor: 1, RetentionMS: month},
	}
}

// Admin wraps kadm for topic management and broker health checks
type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

// NewAdmin creates an admin client for the given brokers
func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}

	return &Admin{client: kadm.NewClient(client), logger: logger}, nil
}

// Close releases the underlying client
func (a *Admin) Close() {
	a.client.Close()
}

// EnsureTopics creates any of the given topics that do not already exist
func (a *Admin) EnsureTopics(ctx context.Context, configs []TopicConfig) error {
	existing, err := a.client.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}

	for _, cfg := range configs {
		if existing.Has(cfg.Name) {
			continue
		}

		topicCfg := map[string]*string{
			"retention.ms": kadm.StringPtr(fmt.Sprintf("%d", cfg.RetentionMS)),
		}

		resp, err := a.client.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, topicCfg, cfg.Name)
		if err != nil {
			return fmt.Errorf("failed to create topic %s: %w", cfg.Name, err)
		}
		for _, r := range resp {
			if r.Err != nil {
				return fmt.Errorf("failed to create topic %s: %w", r.Topic, r.Err)
			}
		}

		a.logger.Info("topic created",
			zap.String("topic", cfg.Name),
			zap.Int32("partitions", cfg.Partitions))
	}

	return nil
}

// ListTopics returns the names of all topics on the cluster
func (a *Admin) ListTopics(ctx context.Context) ([]string, error) {
	details, err := a.client.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return details.Names(), nil
}

// HealthCheck verifies broker connectivity
func (a *Admin) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := a.client.ListBrokers(ctx); err != nil {
		return fmt.Errorf("broker health check failed: %w", err)
	}
	return nil
}
