package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mkarimi/sms-platform/internal/model"
)

// MessagesRepository defines persistence for the messages table.
type MessagesRepository interface {
	InsertBatch(ctx context.Context, tx *sqlx.Tx, msgs []model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)

	// SelectSentBefore returns messages still in status=sent whose sent_at
	// is older than cutoff and that carry a carrier id, bounded by limit.
	SelectSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Message, error)

	// The Mark* transitions are conditional on status=sent so a message
	// leaves sent at most once; the boolean reports whether the row moved.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error)
	MarkTimeout(ctx context.Context, id string, at time.Time) (bool, error)

	SetRefundProcessed(ctx context.Context, tx *sqlx.Tx, id string) error
}

type MessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewMessagesRepository(db *sqlx.DB) *MessagesRepositoryImpl {
	return &MessagesRepositoryImpl{db: db}
}

var _ MessagesRepository = (*MessagesRepositoryImpl)(nil)

func (r *MessagesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

// InsertBatch writes all rows with a single multi-VALUES statement.
func (r *MessagesRepositoryImpl) InsertBatch(ctx context.Context, tx *sqlx.Tx, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(msgs)*10)

	sb.WriteString(`
		INSERT INTO messages
		    (id, account_id, job_id, phone, body, status, cost, carrier_message_id, sent_at, failed_at)
		VALUES `)
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			m.ID, m.AccountID, m.JobID, m.Phone, m.Body,
			m.Status.String(), m.Cost, m.CarrierMessageID, m.SentAt, m.FailedAt,
		)
	}

	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
}

func (r *MessagesRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := r.db.GetContext(ctx, &m, `
		SELECT id, account_id, job_id, phone, body, status, cost, carrier_message_id,
		       sent_at, delivered_at, failed_at, refund_processed
		  FROM messages
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessagesRepositoryImpl) SelectSentBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.Message
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, job_id, phone, body, status, cost, carrier_message_id,
		       sent_at, delivered_at, failed_at, refund_processed
		  FROM messages
		 WHERE status = 'sent'
		   AND carrier_message_id IS NOT NULL
		   AND sent_at <= ?
		 ORDER BY sent_at ASC
		 LIMIT ?
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MessagesRepositoryImpl) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'delivered', delivered_at = ?
		WHERE id = ? AND status = 'sent'
	`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *MessagesRepositoryImpl) MarkFailed(ctx context.Context, tx *sqlx.Tx, id string, at time.Time) (bool, error) {
	const q = `
		UPDATE messages
		SET status = 'failed', failed_at = ?
		WHERE id = ? AND status = 'sent'
	`
	var (
		res sql.Result
		err error
	)
	if tx != nil {
		res, err = tx.ExecContext(ctx, q, at, id)
	} else {
		res, err = r.db.ExecContext(ctx, q, at, id)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *MessagesRepositoryImpl) MarkTimeout(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'timeout', failed_at = ?
		WHERE id = ? AND status = 'sent'
	`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *MessagesRepositoryImpl) SetRefundProcessed(ctx context.Context, tx *sqlx.Tx, id string) error {
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE messages SET refund_processed = 1 WHERE id = ?
		`, id)
		return err
	})
}
