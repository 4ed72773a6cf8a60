package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisHashKey = "qchat:charts"
	redisChannel = "qchat:charts:changed"
)

// RedisCollection keeps charts in a Redis hash and announces changes on a
// pub/sub channel, so every daemon sharing the server sees them.
type RedisCollection struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisCollection connects to redisURL.
func NewRedisCollection(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisCollection, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCollection{client: client, logger: logger, now: time.Now}, nil
}

// List returns all charts, newest first.
func (r *RedisCollection) List(ctx context.Context) ([]Chart, error) {
	raw, err := r.client.HGetAll(ctx, redisHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	cs := make([]Chart, 0, len(raw))
	for id, v := range raw {
		var c Chart
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			r.logger.Warn("skipping malformed chart", zap.String("id", id), zap.Error(err))
			continue
		}
		cs = append(cs, c)
	}
	sortNewest(cs)
	return cs, nil
}

// Add stores c and publishes its id.
func (r *RedisCollection) Add(ctx context.Context, c Chart) (Chart, error) {
	c.ID = uuid.NewString()
	c.CreatedAt = r.now().UnixMilli()
	data, err := json.Marshal(c)
	if err != nil {
		return Chart{}, err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, redisHashKey, c.ID, data)
	pipe.Publish(ctx, redisChannel, c.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return Chart{}, fmt.Errorf("add chart: %w", err)
	}
	return c, nil
}

// Delete removes chart id if requester owns it.
func (r *RedisCollection) Delete(ctx context.Context, id, requester string) error {
	v, err := r.client.HGet(ctx, redisHashKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get chart: %w", err)
	}
	var c Chart
	if err := json.Unmarshal([]byte(v), &c); err != nil {
		return fmt.Errorf("decode chart: %w", err)
	}
	if err := checkOwner(c, requester); err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, redisHashKey, id)
	pipe.Publish(ctx, redisChannel, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete chart: %w", err)
	}
	return nil
}

// Subscribe emits a snapshot now and after every change notification.
func (r *RedisCollection) Subscribe(ctx context.Context) (<-chan []Chart, error) {
	pubsub := r.client.Subscribe(ctx, redisChannel)
	// Wait for the subscription to be confirmed before the first snapshot.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe charts: %w", err)
	}

	out := make(chan []Chart, 1)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		msgs := pubsub.Channel()
		for {
			cs, err := r.List(ctx)
			if err != nil {
				r.logger.Warn("chart snapshot failed", zap.Error(err))
			} else {
				select {
				case out <- cs:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis client.
func (r *RedisCollection) Close() error {
	return r.client.Close()
}
