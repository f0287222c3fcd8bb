package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"bidmarket/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broadcaster publishes notifications on a topic exchange so any connected
// gateway (sockets, email, analytics) can fan them out to clients.
type Broadcaster struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewBroadcaster(url, exchange string) (*Broadcaster, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Broadcaster{conn: conn, ch: ch, exchange: exchange}, nil
}

// RoutingKey is "notification.<type>.<referenceKind>".
func RoutingKey(n models.Notification) string {
	kind := string(n.Reference.Kind)
	if kind == "" {
		kind = "none"
	}
	return fmt.Sprintf("notification.%s.%s", n.Type, kind)
}

func (b *Broadcaster) Notify(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return b.ch.PublishWithContext(ctx, b.exchange, RoutingKey(n), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.CreatedAt,
		Body:         body,
	})
}

func (b *Broadcaster) Close() error {
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
