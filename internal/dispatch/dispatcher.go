package dispatch

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/telcoops/topup/internal/gateway"
	"github.com/telcoops/topup/internal/models"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topup_dispatch_cycles_total",
		Help: "Completed dispatch poll cycles",
	})
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topup_dispatch_published_total",
		Help: "Events published to the broker",
	})
	publishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topup_dispatch_publish_errors_total",
		Help: "Publish attempts that failed and left the request pending",
	})
)

// Dispatcher bridges PENDING requests from the store onto the broker.
// One instance runs a single recurring cycle; cycles never overlap because
// Run executes them inline on the ticker goroutine.
type Dispatcher struct {
	store     gateway.RequestStore
	publisher gateway.EventPublisher
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
}

func New(store gateway.RequestStore, publisher gateway.EventPublisher,
	interval time.Duration, batchSize int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", d.interval).Int("batch_size", d.batchSize).Msg("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("dispatcher stopped")
			return
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

// runCycle publishes each pending request and claims it only after the
// broker acknowledged the publish. A failed item stays PENDING and is picked
// up again on the next cycle; it never aborts the rest of the batch.
func (d *Dispatcher) runCycle(ctx context.Context) {
	defer cyclesTotal.Inc()

	requests, err := d.store.FindPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error().Err(err).Msg("pending query failed, cycle aborted")
		return
	}
	if len(requests) == 0 {
		return
	}

	published := 0
	for _, req := range requests {
		ev := models.TopupEvent{
			RequestID:   req.ID,
			PhoneNumber: req.PhoneNumber,
			Amount:      req.Amount,
			Operator:    req.Carrier,
		}

		if err := d.publisher.PublishTopup(ctx, ev); err != nil {
			publishErrorsTotal.Inc()
			d.logger.Error().Err(err).Str("request_id", req.ID).Msg("publish failed, request left pending")
			continue
		}

		affected, err := d.store.MarkQueued(ctx, req.ID)
		if err != nil {
			d.logger.Error().Err(err).Str("request_id", req.ID).Msg("queued status update failed")
			continue
		}
		if affected == 0 {
			d.logger.Warn().Str("request_id", req.ID).Msg("request already claimed by another cycle")
			continue
		}

		publishedTotal.Inc()
		published++
	}

	d.logger.Info().Int("pending", len(requests)).Int("published", published).Msg("dispatch cycle finished")
}
