package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pharmaops/go-rxchat/internal/domain/order"
)

// RedisStore implements Store backed by Redis, for multi-instance
// deployments. History lives in a list, the pending preview in a string key
// with the preview TTL so expiry happens server side.
type RedisStore struct {
	client       *redis.Client
	historyTTL   time.Duration
	previewTTL   time.Duration
	historyLimit int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, historyTTL time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:       client,
		historyTTL:   historyTTL,
		previewTTL:   DefaultPreviewTTL,
		historyLimit: DefaultHistoryLimit,
	}, nil
}

func (r *RedisStore) historyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

func (r *RedisStore) previewKey(sessionID string) string {
	return fmt.Sprintf("session:%s:pending", sessionID)
}

func (r *RedisStore) AppendHistory(ctx context.Context, sessionID string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := r.historyKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-r.historyLimit), -1)
	pipe.Expire(ctx, key, r.historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (r *RedisStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	raw, err := r.client.LRange(ctx, r.historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to parse turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *RedisStore) SavePreview(ctx context.Context, sessionID string, p *order.Preview) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal preview: %w", err)
	}

	key := r.previewKey(sessionID)
	old, err := r.client.GetSet(ctx, key, data).Result()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("failed to save preview: %w", err)
	}
	if err := r.client.Expire(ctx, key, r.previewTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to set preview TTL: %w", err)
	}

	if old == "" {
		return "", nil
	}
	var prev order.Preview
	if err := json.Unmarshal([]byte(old), &prev); err != nil {
		return "", nil
	}
	return prev.PreviewID, nil
}

func (r *RedisStore) PendingPreview(ctx context.Context, sessionID string) (*order.Preview, error) {
	data, err := r.client.Get(ctx, r.previewKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrNoPendingOrder
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preview: %w", err)
	}

	var p order.Preview
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to parse preview: %w", err)
	}
	return &p, nil
}

func (r *RedisStore) TakePreview(ctx context.Context, sessionID string) (*order.Preview, error) {
	data, err := r.client.GetDel(ctx, r.previewKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrNoPendingOrder
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take preview: %w", err)
	}

	var p order.Preview
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to parse preview: %w", err)
	}
	return &p, nil
}

func (r *RedisStore) ClearPending(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Del(ctx, r.previewKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to clear preview: %w", err)
	}
	return n > 0, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping verifies the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
