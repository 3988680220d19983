package broker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/telcoops/topup/internal/models"
)

// Publisher sends top-up events to a topic exchange as persistent messages.
type Publisher struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

func NewPublisher(ch *amqp.Channel, exchange, routingKey string, logger zerolog.Logger) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, routingKey: routingKey, logger: logger}
}

func (p *Publisher) PublishTopup(ctx context.Context, ev models.TopupEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug().Str("request_id", ev.RequestID).Str("routing_key", p.routingKey).Msg("event published")
	return nil
}

// DeclareTopology declares the exchange, queue, and binding used by the
// pipeline. Safe to call from every process; declarations are idempotent.
func DeclareTopology(ch *amqp.Channel, exchange, queue, routingKey string) error {
	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("exchange declare failed: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("queue declare failed: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind failed: %w", err)
	}
	return nil
}
