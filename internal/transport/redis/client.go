package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

// Publisher fans room events out on a Redis pub/sub channel. Nothing is
// stored.
type Publisher struct {
	client  *redis.Client
	channel string
}

func New(ctx context.Context, addr, channel string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, channel), nil
}

func NewWithClient(client *redis.Client, channel string) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
	}
}

// Publish - sends the event as JSON to the configured channel.
func (that *Publisher) Publish(ctx context.Context, event entity.RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}

	if err = that.client.Publish(ctx, that.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish room event to Redis: %w", err)
	}

	return nil
}

func (that *Publisher) Close() error {
	if err := that.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	return nil
}
