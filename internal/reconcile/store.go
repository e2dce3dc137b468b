package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mkarimi/sms-platform/internal/model"
	"github.com/mkarimi/sms-platform/internal/repository"
)

// SQLStore settles refunds against MySQL. Pool credit, journal row, refund
// status and the message flag move in one transaction, keyed by
// refund-<id> in the journal so a replay cannot double-credit.
type SQLStore struct {
	db       *sqlx.DB
	refunds  repository.RefundsRepository
	messages repository.MessagesRepository
	pool     repository.PoolRepository
	journal  repository.JournalRepository
}

func NewSQLStore(
	db *sqlx.DB,
	refundsRepo repository.RefundsRepository,
	messagesRepo repository.MessagesRepository,
	poolRepo repository.PoolRepository,
	journalRepo repository.JournalRepository,
) *SQLStore {
	return &SQLStore{
		db:       db,
		refunds:  refundsRepo,
		messages: messagesRepo,
		pool:     poolRepo,
		journal:  journalRepo,
	}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) DueRefunds(ctx context.Context, cutoff time.Time, limit int) ([]model.Refund, error) {
	return s.refunds.SelectDue(ctx, cutoff, limit)
}

func (s *SQLStore) MessageStatus(ctx context.Context, messageID string) (model.MessageStatus, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("message %s not found", messageID)
	}
	return m.Status, nil
}

func (s *SQLStore) ProcessRefund(ctx context.Context, rf model.Refund) (bool, error) {
	applied := false
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.refunds.GetForUpdate(ctx, tx, rf.ID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Status.Terminal() {
			return nil
		}

		if err := s.pool.Credit(ctx, tx, cur.RefundAmount); err != nil {
			return fmt.Errorf("pool credit: %w", err)
		}
		if err := s.journal.InsertRefund(ctx, tx, cur.AccountID, cur.RefundAmount, cur.ID); err != nil {
			return fmt.Errorf("journal refund: %w", err)
		}
		ok, err := s.refunds.MarkProcessed(ctx, tx, cur.ID, time.Now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("refund %s changed state concurrently", cur.ID)
		}
		if err := s.messages.SetRefundProcessed(ctx, tx, cur.MessageID); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *SQLStore) CancelRefund(ctx context.Context, rf model.Refund) (bool, error) {
	applied := false
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.refunds.GetForUpdate(ctx, tx, rf.ID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Status.Terminal() {
			return nil
		}
		ok, err := s.refunds.MarkCancelled(ctx, tx, cur.ID, time.Now())
		if err != nil {
			return err
		}
		applied = ok
		return nil
	})
	return applied, err
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
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
