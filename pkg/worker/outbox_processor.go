package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
	"github.com/praxisboard/board-api/pkg/logger"
	"github.com/praxisboard/board-api/pkg/messaging"
	"github.com/praxisboard/board-api/pkg/metrics"
)

// OutboxProcessor polls pending feed events and publishes them to the broker.
// Events are marked processed only after a successful publish, so a crashed
// publish is retried on the next poll.
type OutboxProcessor struct {
	repo      repository.OutboxRepository
	broker    messaging.Broker
	logger    *logger.Logger
	metrics   *metrics.Metrics
	channel   string
	interval  time.Duration
	batchSize int
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	log *logger.Logger,
	m *metrics.Metrics,
	channel string,
	interval time.Duration,
	batchSize int,
) *OutboxProcessor {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxProcessor{
		repo:      repo,
		broker:    broker,
		logger:    log,
		metrics:   m,
		channel:   channel,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start blocks until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("outbox processor started", "channel", p.channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox processor stopped")
			return
		case <-ticker.C:
			if err := p.processPending(ctx); err != nil {
				p.logger.Error(err, "failed to process pending events")
			}
		}
	}
}

func (p *OutboxProcessor) processPending(ctx context.Context) error {
	events, err := p.repo.GetPendingEvents(ctx, p.batchSize)
	p.observeDB("outbox_fetch", err)
	if err != nil {
		return err
	}

	for _, event := range events {
		start := time.Now()
		if err := p.publish(ctx, event); err != nil {
			if p.metrics != nil {
				p.metrics.OutboxEventsFailed.Inc()
			}
			p.logger.Error(err, "failed to publish event", "event_id", event.ID)

			msg := err.Error()
			uerr := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusFailed, &msg)
			p.observeDB("outbox_mark", uerr)
			if uerr != nil {
				p.logger.Error(uerr, "failed to mark event failed", "event_id", event.ID)
			}
			continue
		}

		if p.metrics != nil {
			p.metrics.OutboxEventsProcessed.Inc()
			p.metrics.OutboxProcessingLatency.Observe(time.Since(start).Seconds())
		}

		err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil)
		p.observeDB("outbox_mark", err)
		if err != nil {
			p.logger.Error(err, "failed to mark event processed", "event_id", event.ID)
		}
	}
	return nil
}

func (p *OutboxProcessor) observeDB(operation string, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.DatabaseOperations.WithLabelValues(operation, status).Inc()
}

func (p *OutboxProcessor) publish(ctx context.Context, event *model.OutboxEvent) error {
	// Payloads are stored pre-marshalled; decode so the broker does not
	// double-encode them.
	var payload json.RawMessage = event.Payload
	return p.broker.Publish(ctx, p.channel, payload)
}
