package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tkersh/echobase-sub003/internal/order"
)

// DefaultChannel carries order-completed notifications.
const DefaultChannel = "orders:completed"

// OrderCompleted is published after an order is persisted and its message deleted.
type OrderCompleted struct {
	OrderID       int64  `json:"order_id"`
	UserID        int64  `json:"user_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
}

// Notifier publishes OrderCompleted events on Redis pub/sub.
type Notifier struct {
	client  redis.UniversalClient
	channel string
}

// Options for NewNotifier.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewNotifier connects and pings Redis.
func NewNotifier(ctx context.Context, opts Options) (*Notifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewNotifierWithClient(client, opts.Channel), nil
}

// NewNotifierWithClient wraps an existing client.
func NewNotifierWithClient(client redis.UniversalClient, channel string) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{client: client, channel: channel}
}

// PublishOrderCompleted publishes evt on the configured channel.
func (n *Notifier) PublishOrderCompleted(ctx context.Context, evt *OrderCompleted) error {
	msgJSON, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// NotifyCompleted publishes the notification for a persisted order.
func (n *Notifier) NotifyCompleted(ctx context.Context, o *order.PersistedOrder) error {
	return n.PublishOrderCompleted(ctx, &OrderCompleted{
		OrderID:       o.ID,
		UserID:        o.UserID,
		CorrelationID: o.CorrelationID,
		Status:        string(o.Status),
		Timestamp:     time.Now().Unix(),
	})
}

// Close closes the Redis connection.
func (n *Notifier) Close() error {
	return n.client.Close()
}
