package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// JournalRepository records every credit movement with an idempotency key.
// Keys: reserve-<jobID>, release-<jobID>, refund-<refundID>, topup-<reqID>.
// Inserts are idempotent (ON DUPLICATE KEY UPDATE id = id), which guards the
// saga against duplicate compensation on retried calls.
type JournalRepository interface {
	ExistsByIdem(ctx context.Context, idem string) (bool, error)
	InsertReserve(ctx context.Context, accountID, amount int64, jobID string) error
	InsertRelease(ctx context.Context, accountID, amount int64, jobID string) error
	InsertRefund(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, refundID string) error
	InsertTopup(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, idem string) error
}

type JournalRepositoryImpl struct {
	db *sqlx.DB
}

func NewJournalRepository(db *sqlx.DB) *JournalRepositoryImpl {
	return &JournalRepositoryImpl{db: db}
}

var _ JournalRepository = (*JournalRepositoryImpl)(nil)

func (r *JournalRepositoryImpl) ExistsByIdem(ctx context.Context, idem string) (bool, error) {
	var one int
	err := r.db.QueryRowxContext(ctx,
		`SELECT 1 FROM credit_journal WHERE idempotency_key = ? LIMIT 1`, idem,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const insertJournalQ = `
	INSERT INTO credit_journal (account_id, op, amount, idempotency_key, ref_id)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE id = id
`

func (r *JournalRepositoryImpl) InsertReserve(ctx context.Context, accountID, amount int64, jobID string) error {
	_, err := r.db.ExecContext(ctx, insertJournalQ, accountID, "reserve", amount, "reserve-"+jobID, jobID)
	return err
}

func (r *JournalRepositoryImpl) InsertRelease(ctx context.Context, accountID, amount int64, jobID string) error {
	_, err := r.db.ExecContext(ctx, insertJournalQ, accountID, "release", amount, "release-"+jobID, jobID)
	return err
}

func (r *JournalRepositoryImpl) InsertRefund(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, refundID string) error {
	_, err := tx.ExecContext(ctx, insertJournalQ, accountID, "refund", amount, "refund-"+refundID, refundID)
	return err
}

func (r *JournalRepositoryImpl) InsertTopup(ctx context.Context, tx *sqlx.Tx, accountID, amount int64, idem string) error {
	_, err := tx.ExecContext(ctx, insertJournalQ, accountID, "topup", amount, idem, "")
	return err
}
