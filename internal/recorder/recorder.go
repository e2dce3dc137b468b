// Package recorder persists per-recipient dispatch outcomes. Credit is
// always reserved before this package runs; failure rows therefore carry a
// pending refund so reserved credit is never stranded.
package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"context"

	"github.com/jmoiron/sqlx"
	"github.com/mkarimi/sms-platform/internal/model"
	"github.com/mkarimi/sms-platform/internal/repository"
	"github.com/mkarimi/sms-platform/internal/util"
)

// Outcome is one recipient's result within a batch.
type Outcome struct {
	MessageID        string
	JobID            string
	AccountID        int64
	Phone            string
	Body             string
	Cost             int64
	CarrierMessageID string // set on success
	Err              string // set on failure
	At               time.Time
}

type Service struct {
	db       *sqlx.DB
	messages repository.MessagesRepository
	refunds  repository.RefundsRepository
	outbox   repository.OutboxRepository
	topic    string
}

func New(
	db *sqlx.DB,
	messagesRepo repository.MessagesRepository,
	refundsRepo repository.RefundsRepository,
	outboxRepo repository.OutboxRepository,
	topic string,
) *Service {
	return &Service{
		db:       db,
		messages: messagesRepo,
		refunds:  refundsRepo,
		outbox:   outboxRepo,
		topic:    topic,
	}
}

// RecordSuccess bulk-inserts sent rows plus their outbox events in one
// transaction.
func (s *Service) RecordSuccess(ctx context.Context, batch []Outcome) error {
	if len(batch) == 0 {
		return nil
	}

	msgs := make([]model.Message, 0, len(batch))
	events := make([]model.OutboxEvent, 0, len(batch))
	for _, o := range batch {
		msgs = append(msgs, model.Message{
			ID:               o.MessageID,
			AccountID:        o.AccountID,
			JobID:            o.JobID,
			Phone:            o.Phone,
			Body:             o.Body,
			Status:           model.StatusSent,
			Cost:             o.Cost,
			CarrierMessageID: sql.NullString{String: o.CarrierMessageID, Valid: o.CarrierMessageID != ""},
			SentAt:           o.At,
		})
		events = append(events, s.event(o, model.StatusSent))
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.messages.InsertBatch(ctx, tx, msgs); err != nil {
			return fmt.Errorf("insert sent batch: %w", err)
		}
		if err := s.outbox.InsertBatch(ctx, tx, events); err != nil {
			return fmt.Errorf("insert outbox batch: %w", err)
		}
		return nil
	})
}

// RecordFailure bulk-inserts failed rows and, when the sender is refund
// eligible, one pending refund per row with refund_amount equal to the
// message cost.
func (s *Service) RecordFailure(ctx context.Context, batch []Outcome, refundEligible bool) error {
	if len(batch) == 0 {
		return nil
	}

	now := time.Now()
	msgs := make([]model.Message, 0, len(batch))
	refunds := make([]model.Refund, 0, len(batch))
	events := make([]model.OutboxEvent, 0, len(batch))
	for _, o := range batch {
		at := o.At
		if at.IsZero() {
			at = now
		}
		failedAt := at
		msgs = append(msgs, model.Message{
			ID:        o.MessageID,
			AccountID: o.AccountID,
			JobID:     o.JobID,
			Phone:     o.Phone,
			Body:      o.Body,
			Status:    model.StatusFailed,
			Cost:      o.Cost,
			SentAt:    at,
			FailedAt:  &failedAt,
		})
		if refundEligible {
			refunds = append(refunds, model.Refund{
				ID:           util.NewID(),
				AccountID:    o.AccountID,
				MessageID:    o.MessageID,
				OriginalCost: o.Cost,
				RefundAmount: o.Cost,
				Reason:       fmt.Sprintf("send to %s failed: %s", o.Phone, o.Err),
				CreatedAt:    at,
			})
		}
		events = append(events, s.event(o, model.StatusFailed))
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.messages.InsertBatch(ctx, tx, msgs); err != nil {
			return fmt.Errorf("insert failed batch: %w", err)
		}
		if err := s.refunds.InsertBatch(ctx, tx, refunds); err != nil {
			return fmt.Errorf("insert refund batch: %w", err)
		}
		if err := s.outbox.InsertBatch(ctx, tx, events); err != nil {
			return fmt.Errorf("insert outbox batch: %w", err)
		}
		return nil
	})
}

func (s *Service) event(o Outcome, status model.MessageStatus) model.OutboxEvent {
	payload, _ := json.Marshal(model.OutcomeEvent{
		MessageID: o.MessageID,
		JobID:     o.JobID,
		AccountID: o.AccountID,
		Phone:     o.Phone,
		Status:    status,
		Cost:      o.Cost,
	})
	return model.OutboxEvent{
		Aggregate:   "message",
		AggregateID: o.MessageID,
		Topic:       s.topic,
		Payload:     payload,
	}
}

func (s *Service) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
