package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mkarimi/sms-platform/internal/model"
	"github.com/mkarimi/sms-platform/internal/repository"
	"github.com/mkarimi/sms-platform/internal/util"
)

// SQLStore resolves poll transitions against MySQL.
type SQLStore struct {
	db       *sqlx.DB
	messages repository.MessagesRepository
	refunds  repository.RefundsRepository
	accounts repository.AccountsRepository
}

func NewSQLStore(
	db *sqlx.DB,
	messagesRepo repository.MessagesRepository,
	refundsRepo repository.RefundsRepository,
	accountsRepo repository.AccountsRepository,
) *SQLStore {
	return &SQLStore{
		db:       db,
		messages: messagesRepo,
		refunds:  refundsRepo,
		accounts: accountsRepo,
	}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) SentMessages(ctx context.Context, cutoff time.Time, limit int) ([]model.Message, error) {
	return s.messages.SelectSentBefore(ctx, cutoff, limit)
}

func (s *SQLStore) MarkDelivered(ctx context.Context, messageID string, at time.Time) (bool, error) {
	return s.messages.MarkDelivered(ctx, messageID, at)
}

func (s *SQLStore) MarkTimeout(ctx context.Context, messageID string, at time.Time) (bool, error) {
	return s.messages.MarkTimeout(ctx, messageID, at)
}

func (s *SQLStore) FailMessage(ctx context.Context, msg model.Message, reason string, at time.Time, createRefund bool) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	applied, err := s.messages.MarkFailed(ctx, tx, msg.ID, at)
	if err != nil {
		return false, err
	}
	if applied && createRefund {
		rf := model.Refund{
			ID:           util.NewID(),
			AccountID:    msg.AccountID,
			MessageID:    msg.ID,
			OriginalCost: msg.Cost,
			RefundAmount: msg.Cost,
			Reason:       reason,
			CreatedAt:    at,
		}
		if err := s.refunds.InsertBatch(ctx, tx, []model.Refund{rf}); err != nil {
			return false, fmt.Errorf("insert refund: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return applied, nil
}

func (s *SQLStore) HasPendingRefund(ctx context.Context, messageID string) (bool, error) {
	return s.refunds.HasPending(ctx, messageID)
}

func (s *SQLStore) IsPrivileged(ctx context.Context, accountID int64) (bool, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, fmt.Errorf("account %d not found", accountID)
	}
	return a.Privileged, nil
}
