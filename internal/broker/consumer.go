package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/telcoops/topup/internal/models"
)

var consumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "topup_events_consumed_total",
	Help: "Deliveries consumed, by result (acked, dropped, requeued)",
}, []string{"result"})

// EventHandler settles one decoded event. A non-nil error asks for redelivery.
type EventHandler interface {
	ProcessEvent(ctx context.Context, ev *models.TopupEvent) error
}

// Consumer pulls deliveries from the settlement queue and fans them out to a
// fixed pool of worker goroutines. Acknowledgement is manual: an undecodable
// payload is dropped, a handler error is requeued for the broker to retry.
type Consumer struct {
	channel *amqp.Channel
	queue   string
	workers int
	handler EventHandler
	logger  zerolog.Logger
}

func NewConsumer(ch *amqp.Channel, queue string, workers int, handler EventHandler, logger zerolog.Logger) *Consumer {
	return &Consumer{channel: ch, queue: queue, workers: workers, handler: handler, logger: logger}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	// Prefetch one message per worker so the broker never buries a slow pool.
	if err := c.channel.Qos(c.workers, 0, false); err != nil {
		return err
	}

	deliveries, err := c.channel.Consume(
		c.queue,
		"settler", // consumer tag
		false,     // manual ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info().Str("queue", c.queue).Int("workers", c.workers).Msg("consumer started")

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx, deliveries)
		}()
	}
	wg.Wait()
	return nil
}

func (c *Consumer) work(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var ev models.TopupEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.logger.Error().Err(err).Msg("undecodable payload dropped")
		consumedTotal.WithLabelValues("dropped").Inc()
		c.nack(d, false)
		return
	}

	if err := c.handler.ProcessEvent(ctx, &ev); err != nil {
		// Even the compensating transaction failed; the broker's
		// redelivery policy owns this message now.
		c.logger.Error().Err(err).Str("request_id", ev.RequestID).Msg("settlement unrecoverable, requeueing")
		consumedTotal.WithLabelValues("requeued").Inc()
		c.nack(d, true)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error().Err(err).Str("request_id", ev.RequestID).Msg("ack failed")
		return
	}
	consumedTotal.WithLabelValues("acked").Inc()
}

func (c *Consumer) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		c.logger.Error().Err(err).Msg("nack failed")
	}
}
