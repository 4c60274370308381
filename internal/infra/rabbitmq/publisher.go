package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/polithane/polithane-media-service/internal/domain/entity"
	amqp "github.com/rabbitmq/amqp091-go"
)

const statusRoutingKey = "media.status"

// StatusPublisher broadcasts job state changes on the platform exchange so
// the notification service can surface processing progress to users.
type StatusPublisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewStatusPublisher(conn *amqp.Connection, exchange string) (*StatusPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &StatusPublisher{channel: ch, exchange: exchange}, nil
}

func (p *StatusPublisher) PublishStatus(ctx context.Context, event entity.MediaStatusEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		statusRoutingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

func (p *StatusPublisher) Close() error {
	return p.channel.Close()
}
