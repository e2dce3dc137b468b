// Package worker hosts the outbox relay: it ships recorded outcome events
// from the outbox table to Kafka with at-least-once delivery.
package worker

import (
	"context"
	"time"

	"github.com/mkarimi/sms-platform/internal/kafka"
	"github.com/mkarimi/sms-platform/internal/logger"
	"github.com/mkarimi/sms-platform/internal/repository"
	"go.uber.org/zap"
)

type Relay struct {
	Outbox   repository.OutboxRepository
	Producer *kafka.Producer

	Limit int           // rows per sweep (default 500)
	Every time.Duration // sweep interval (default 2s)
}

func NewRelay(outbox repository.OutboxRepository, producer *kafka.Producer, limit int, every time.Duration) *Relay {
	if limit <= 0 {
		limit = 500
	}
	if every <= 0 {
		every = 2 * time.Second
	}
	return &Relay{Outbox: outbox, Producer: producer, Limit: limit, Every: every}
}

// Run sweeps the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	tick := time.NewTicker(r.Every)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := r.sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Log.Error("outbox sweep failed", zap.Error(err))
			}
		}
	}
}

// sweep publishes one page of unpublished rows, then marks them. A crash
// between publish and mark re-delivers on the next sweep; consumers must
// dedupe on message id.
func (r *Relay) sweep(ctx context.Context) error {
	events, err := r.Outbox.SelectUnpublished(ctx, r.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
		})
		ids = append(ids, e.ID)
	}

	if err := r.Producer.Publish(ctx, msgs...); err != nil {
		return err
	}
	if err := r.Outbox.MarkPublished(ctx, ids, time.Now()); err != nil {
		return err
	}

	logger.Log.Debug("relayed outbox events", zap.Int("count", len(ids)))
	return nil
}
