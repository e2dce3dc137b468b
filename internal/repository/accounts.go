package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/mkarimi/sms-platform/internal/model"
)

type AccountsRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error)
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	Balance(ctx context.Context, id int64) (int64, error)

	// Debit atomically subtracts amount when the balance covers it. The
	// boolean reports whether the deduction was applied; false means
	// insufficient balance, never a silent partial deduction.
	Debit(ctx context.Context, id int64, amount int64) (bool, error)
	Credit(ctx context.Context, id int64, amount int64) error
	Topup(ctx context.Context, tx *sqlx.Tx, id int64, amount int64) error
}

type AccountsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAccountsRepository(db *sqlx.DB) *AccountsRepositoryImpl {
	return &AccountsRepositoryImpl{db: db}
}

var _ AccountsRepository = (*AccountsRepositoryImpl)(nil)

func (r *AccountsRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Account, error) {
	var a model.Account
	err := r.db.GetContext(ctx, &a, `
		SELECT id, name, api_key, status, privileged, balance, rate_limit_rps, created_at, updated_at
		  FROM accounts
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var a model.Account
	err := r.db.GetContext(ctx, &a, `
		SELECT id, name, api_key, status, privileged, balance, rate_limit_rps, created_at, updated_at
		  FROM accounts
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountsRepositoryImpl) Balance(ctx context.Context, id int64) (int64, error) {
	var bal int64
	err := r.db.GetContext(ctx, &bal, `SELECT balance FROM accounts WHERE id = ?`, id)
	return bal, err
}

func (r *AccountsRepositoryImpl) Debit(ctx context.Context, id int64, amount int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance - ?, updated_at = NOW()
		WHERE id = ? AND balance >= ?
	`, amount, id, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *AccountsRepositoryImpl) Credit(ctx context.Context, id int64, amount int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + ?, updated_at = NOW()
		WHERE id = ?
	`, amount, id)
	return err
}

func (r *AccountsRepositoryImpl) Topup(ctx context.Context, tx *sqlx.Tx, id int64, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + ?, updated_at = NOW()
		WHERE id = ?
	`, amount, id)
	return err
}
