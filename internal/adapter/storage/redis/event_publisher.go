package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"custody-vault/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// EventPublisher implements ports.EventPublisher over Redis pub/sub. Each
// event is published as its JSON payload on one channel.
type EventPublisher struct {
	client  *goredis.Client
	channel string
}

// NewEventPublisher creates a publisher for channel.
func NewEventPublisher(client *goredis.Client, channel string) *EventPublisher {
	return &EventPublisher{client: client, channel: channel}
}

func (p *EventPublisher) Name() string { return "redis" }

func (p *EventPublisher) Publish(ctx context.Context, event *domain.Event) error {
	body, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("redis publish: marshal payload: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}
