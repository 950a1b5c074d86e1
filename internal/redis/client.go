package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order_dashboard/internal/models"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound is returned by GetJSON for a missing key.
var ErrNotFound = errors.New("key not found")

type Client struct {
	rdb *redis.Client
}

func Initialize(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Order events

func (c *Client) PublishOrderEvent(ctx context.Context, channel string, event models.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// SubscribeOrderEvents opens a subscription and waits for the server to
// confirm it, so a returned stream is known to be connected.
func (c *Client) SubscribeOrderEvents(ctx context.Context, channel string) (*OrderEventStream, error) {
	ps := c.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	return &OrderEventStream{ps: ps}, nil
}

// OrderEventStream reads decoded events from one subscription.
type OrderEventStream struct {
	ps *redis.PubSub
}

// Next blocks for the next event. Undecodable payloads return an error
// wrapping models.ErrMalformedEvent; any other error means the connection
// is gone and the stream must be closed.
func (s *OrderEventStream) Next(ctx context.Context) (models.OrderEvent, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return models.OrderEvent{}, err
	}
	var event models.OrderEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return models.OrderEvent{}, fmt.Errorf("%w: %v", models.ErrMalformedEvent, err)
	}
	switch event.Type {
	case models.EventInsert, models.EventUpdate, models.EventDelete:
	default:
		return models.OrderEvent{}, fmt.Errorf("%w: unknown type %q", models.ErrMalformedEvent, event.Type)
	}
	return event, nil
}

func (s *OrderEventStream) Close() error {
	return s.ps.Close()
}

// View preferences

func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, jsonData, ttl).Err()
}

func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	return json.Unmarshal([]byte(val), dest)
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Close Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
