package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mkarimi/sms-platform/internal/model"
)

// RefundsRepository defines persistence for the refunds table. A unique key
// on message_id enforces the 1:1 refund-per-message invariant; inserts are
// idempotent against it.
type RefundsRepository interface {
	InsertBatch(ctx context.Context, tx *sqlx.Tx, refunds []model.Refund) error
	HasPending(ctx context.Context, messageID string) (bool, error)

	// SelectDue returns pending refunds whose triggering message was
	// created at or before cutoff.
	SelectDue(ctx context.Context, cutoff time.Time, limit int) ([]model.Refund, error)

	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Refund, error)
	MarkProcessed(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error)
}

type RefundsRepositoryImpl struct {
	db *sqlx.DB
}

func NewRefundsRepository(db *sqlx.DB) *RefundsRepositoryImpl {
	return &RefundsRepositoryImpl{db: db}
}

var _ RefundsRepository = (*RefundsRepositoryImpl)(nil)

func (r *RefundsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *RefundsRepositoryImpl) InsertBatch(ctx context.Context, tx *sqlx.Tx, refunds []model.Refund) error {
	if len(refunds) == 0 {
		return nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(refunds)*7)

	sb.WriteString(`
		INSERT INTO refunds
		    (id, account_id, message_id, original_cost, refund_amount, reason, status, created_at)
		VALUES `)
	for i, rf := range refunds {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, 'pending', ?)")
		args = append(args,
			rf.ID, rf.AccountID, rf.MessageID, rf.OriginalCost, rf.RefundAmount, rf.Reason, rf.CreatedAt,
		)
	}
	sb.WriteString(` ON DUPLICATE KEY UPDATE id = id`)

	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
}

func (r *RefundsRepositoryImpl) HasPending(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := r.db.QueryRowxContext(ctx, `
		SELECT 1 FROM refunds WHERE message_id = ? AND status = 'pending' LIMIT 1
	`, messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RefundsRepositoryImpl) SelectDue(ctx context.Context, cutoff time.Time, limit int) ([]model.Refund, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []model.Refund
	err := r.db.SelectContext(ctx, &rows, `
		SELECT r.id, r.account_id, r.message_id, r.original_cost, r.refund_amount,
		       r.reason, r.status, r.created_at, r.processed_at
		  FROM refunds r
		  JOIN messages m ON m.id = r.message_id
		 WHERE r.status = 'pending'
		   AND m.sent_at <= ?
		 ORDER BY r.created_at ASC
		 LIMIT ?
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *RefundsRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Refund, error) {
	var rf model.Refund
	err := tx.GetContext(ctx, &rf, `
		SELECT id, account_id, message_id, original_cost, refund_amount,
		       reason, status, created_at, processed_at
		  FROM refunds
		 WHERE id = ?
		 FOR UPDATE
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *RefundsRepositoryImpl) MarkProcessed(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error) {
	return r.markTerminal(ctx, tx, id, "processed", at)
}

func (r *RefundsRepositoryImpl) MarkCancelled(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error) {
	return r.markTerminal(ctx, tx, id, "cancelled", at)
}

func (r *RefundsRepositoryImpl) markTerminal(ctx context.Context, tx *sqlx.Tx, id, status string, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE refunds
		SET status = ?, processed_at = ?
		WHERE id = ? AND status = 'pending'
	`, status, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
