package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"config-codex/internal/domain"
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamPublisher agrega cada evento a un stream de redis.
type RedisStreamPublisher struct {
	client streamAdder
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	return newRedisStreamPublisher(client, stream)
}

func newRedisStreamPublisher(client streamAdder, stream string) *RedisStreamPublisher {
	if stream == "" {
		stream = "identity:events"
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: 10000}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, event domain.Event) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":         event.Type,
			"aggregate_id": event.AggregateID,
			"email":        event.Email,
			"full_name":    event.FullName,
			"ip_address":   event.IPAddress,
			"occurred_at":  event.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
