// Package ledger implements credit reservation across the per-account
// balance and the shared pool. The two balances are not updated as one
// native transaction; Reserve is a saga with an explicit compensating step.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkarimi/sms-platform/internal/logger"
	"go.uber.org/zap"
)

type Scope string

const (
	ScopeUser Scope = "user"
	ScopePool Scope = "pool"
)

// InsufficientCreditError reports which ledger could not cover the amount.
type InsufficientCreditError struct {
	Scope  Scope
	Amount int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: scope=%s amount=%d", e.Scope, e.Amount)
}

var ErrDuplicateReservation = errors.New("reservation already exists for this job")

// AccountStore is the per-account balance surface the saga needs.
type AccountStore interface {
	Debit(ctx context.Context, id int64, amount int64) (bool, error)
	Credit(ctx context.Context, id int64, amount int64) error
}

// PoolStore is the pooled balance surface. Debit must be atomic.
type PoolStore interface {
	Balance(ctx context.Context) (int64, error)
	Set(ctx context.Context, value int64) error
	Debit(ctx context.Context, amount int64) (bool, error)
}

// JournalStore records credit movements under idempotency keys.
type JournalStore interface {
	ExistsByIdem(ctx context.Context, idem string) (bool, error)
	InsertReserve(ctx context.Context, accountID, amount int64, jobID string) error
	InsertRelease(ctx context.Context, accountID, amount int64, jobID string) error
}

type Service struct {
	accounts AccountStore
	pool     PoolStore
	journal  JournalStore
}

func New(accounts AccountStore, pool PoolStore, journal JournalStore) *Service {
	return &Service{accounts: accounts, pool: pool, journal: journal}
}

// Reserve deducts amount for the given job. Privileged senders bill the
// pool only; everyone else must cover the amount on both the personal
// balance and the pool. If the pool deduction fails after the personal
// deduction succeeded, the personal deduction is rolled back exactly and
// the call fails with scope=pool. The jobID doubles as the saga's
// idempotency key, so a retried submission cannot bill twice.
func (s *Service) Reserve(ctx context.Context, accountID, amount int64, privileged bool, jobID string) error {
	if amount <= 0 {
		return fmt.Errorf("invalid reserve amount %d", amount)
	}

	exists, err := s.journal.ExistsByIdem(ctx, "reserve-"+jobID)
	if err != nil {
		return fmt.Errorf("reserve idempotency check: %w", err)
	}
	if exists {
		return ErrDuplicateReservation
	}

	if !privileged {
		ok, err := s.accounts.Debit(ctx, accountID, amount)
		if err != nil {
			return fmt.Errorf("account debit: %w", err)
		}
		if !ok {
			return &InsufficientCreditError{Scope: ScopeUser, Amount: amount}
		}
	}

	ok, err := s.pool.Debit(ctx, amount)
	if err == nil && !ok {
		err = &InsufficientCreditError{Scope: ScopePool, Amount: amount}
	}
	if err != nil {
		if !privileged {
			// compensate: restore exactly what the account paid
			if cerr := s.accounts.Credit(ctx, accountID, amount); cerr != nil {
				logger.Log.Error("reserve compensation failed",
					zap.Int64("account_id", accountID),
					zap.Int64("amount", amount),
					zap.Error(cerr))
				return fmt.Errorf("pool debit failed and compensation failed: %w", cerr)
			}
			_ = s.journal.InsertRelease(ctx, accountID, amount, jobID)
		}
		var ice *InsufficientCreditError
		if errors.As(err, &ice) {
			return ice
		}
		return fmt.Errorf("pool debit: %w", err)
	}

	if err := s.journal.InsertReserve(ctx, accountID, amount, jobID); err != nil {
		logger.Log.Warn("reserve journal write failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
	return nil
}

// GetPooled returns the current pooled balance.
func (s *Service) GetPooled(ctx context.Context) (int64, error) {
	return s.pool.Balance(ctx)
}

// SetPooled overwrites the pooled balance (admin/seed path).
func (s *Service) SetPooled(ctx context.Context, value int64) error {
	if value < 0 {
		return fmt.Errorf("pooled balance must be non-negative, got %d", value)
	}
	return s.pool.Set(ctx, value)
}
