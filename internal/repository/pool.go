package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// PoolRepository manages the platform-wide pooled credit balance. The pool
// is a single row mutated only through atomic conditional updates, so
// concurrent dispatches cannot lose deductions to read-modify-write races.
type PoolRepository interface {
	Balance(ctx context.Context) (int64, error)
	Set(ctx context.Context, value int64) error

	// Debit subtracts amount when the pool covers it; the boolean reports
	// whether the deduction was applied.
	Debit(ctx context.Context, amount int64) (bool, error)

	// Credit adds amount back to the pool. If tx is non-nil it joins the
	// caller's transaction (the reconciler credits the pool together with
	// marking the refund processed).
	Credit(ctx context.Context, tx *sqlx.Tx, amount int64) error
}

type PoolRepositoryImpl struct {
	db *sqlx.DB
}

func NewPoolRepository(db *sqlx.DB) *PoolRepositoryImpl {
	return &PoolRepositoryImpl{db: db}
}

var _ PoolRepository = (*PoolRepositoryImpl)(nil)

func (r *PoolRepositoryImpl) Balance(ctx context.Context) (int64, error) {
	var bal int64
	err := r.db.GetContext(ctx, &bal, `SELECT balance FROM credit_pool WHERE id = 1`)
	return bal, err
}

func (r *PoolRepositoryImpl) Set(ctx context.Context, value int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credit_pool SET balance = ?, updated_at = NOW() WHERE id = 1
	`, value)
	return err
}

func (r *PoolRepositoryImpl) Debit(ctx context.Context, amount int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE credit_pool
		SET balance = balance - ?, updated_at = NOW()
		WHERE id = 1 AND balance >= ?
	`, amount, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PoolRepositoryImpl) Credit(ctx context.Context, tx *sqlx.Tx, amount int64) error {
	const q = `UPDATE credit_pool SET balance = balance + ?, updated_at = NOW() WHERE id = 1`
	if tx != nil {
		_, err := tx.ExecContext(ctx, q, amount)
		return err
	}
	_, err := r.db.ExecContext(ctx, q, amount)
	return err
}
