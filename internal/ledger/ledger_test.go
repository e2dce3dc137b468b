package ledger

import (
	"context"
	"errors"
	"testing"
)

type fakeAccounts struct {
	balances map[int64]int64
	debits   int
	credits  int
}

func (f *fakeAccounts) Debit(_ context.Context, id, amount int64) (bool, error) {
	f.debits++
	if f.balances[id] < amount {
		return false, nil
	}
	f.balances[id] -= amount
	return true, nil
}

func (f *fakeAccounts) Credit(_ context.Context, id, amount int64) error {
	f.credits++
	f.balances[id] += amount
	return nil
}

type fakePool struct {
	balance int64
	debits  int
}

func (f *fakePool) Balance(context.Context) (int64, error) { return f.balance, nil }
func (f *fakePool) Set(_ context.Context, v int64) error   { f.balance = v; return nil }

func (f *fakePool) Debit(_ context.Context, amount int64) (bool, error) {
	f.debits++
	if f.balance < amount {
		return false, nil
	}
	f.balance -= amount
	return true, nil
}

type fakeJournal struct {
	idems map[string]bool
}

func newFakeJournal() *fakeJournal { return &fakeJournal{idems: map[string]bool{}} }

func (f *fakeJournal) ExistsByIdem(_ context.Context, idem string) (bool, error) {
	return f.idems[idem], nil
}

func (f *fakeJournal) InsertReserve(_ context.Context, _, _ int64, jobID string) error {
	f.idems["reserve-"+jobID] = true
	return nil
}

func (f *fakeJournal) InsertRelease(_ context.Context, _, _ int64, jobID string) error {
	f.idems["release-"+jobID] = true
	return nil
}

func TestReserve_DeductsBothLedgers(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{balances: map[int64]int64{7: 100}}
	pool := &fakePool{balance: 500}
	svc := New(accounts, pool, newFakeJournal())

	if err := svc.Reserve(context.Background(), 7, 30, false, "job-1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := accounts.balances[7]; got != 70 {
		t.Errorf("account balance = %d, want 70", got)
	}
	if pool.balance != 470 {
		t.Errorf("pool balance = %d, want 470", pool.balance)
	}
}

func TestReserve_PrivilegedBillsPoolOnly(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{balances: map[int64]int64{7: 5}}
	pool := &fakePool{balance: 500}
	svc := New(accounts, pool, newFakeJournal())

	if err := svc.Reserve(context.Background(), 7, 100, true, "job-2"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if accounts.debits != 0 {
		t.Errorf("expected no account debit, got %d", accounts.debits)
	}
	if pool.balance != 400 {
		t.Errorf("pool balance = %d, want 400", pool.balance)
	}
}

func TestReserve_UserInsufficient_PoolUntouched(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{balances: map[int64]int64{7: 10}}
	pool := &fakePool{balance: 500}
	svc := New(accounts, pool, newFakeJournal())

	err := svc.Reserve(context.Background(), 7, 30, false, "job-3")

	var ice *InsufficientCreditError
	if !errors.As(err, &ice) || ice.Scope != ScopeUser {
		t.Fatalf("expected InsufficientCreditError{user}, got %v", err)
	}
	if pool.debits != 0 {
		t.Errorf("pool was touched %d times, want 0", pool.debits)
	}
	if got := accounts.balances[7]; got != 10 {
		t.Errorf("account balance = %d, want 10", got)
	}
}

func TestReserve_PoolInsufficient_CompensatesUser(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{balances: map[int64]int64{7: 100}}
	pool := &fakePool{balance: 20}
	svc := New(accounts, pool, newFakeJournal())

	err := svc.Reserve(context.Background(), 7, 30, false, "job-4")

	var ice *InsufficientCreditError
	if !errors.As(err, &ice) || ice.Scope != ScopePool {
		t.Fatalf("expected InsufficientCreditError{pool}, got %v", err)
	}
	if got := accounts.balances[7]; got != 100 {
		t.Errorf("account balance = %d, want 100 (rolled back)", got)
	}
	if accounts.credits != 1 {
		t.Errorf("compensation credits = %d, want 1", accounts.credits)
	}
	if pool.balance != 20 {
		t.Errorf("pool balance = %d, want 20", pool.balance)
	}
}

func TestReserve_DuplicateJobID(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{balances: map[int64]int64{7: 100}}
	pool := &fakePool{balance: 500}
	svc := New(accounts, pool, newFakeJournal())

	if err := svc.Reserve(context.Background(), 7, 30, false, "job-5"); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	err := svc.Reserve(context.Background(), 7, 30, false, "job-5")
	if !errors.Is(err, ErrDuplicateReservation) {
		t.Fatalf("expected ErrDuplicateReservation, got %v", err)
	}
	if got := accounts.balances[7]; got != 70 {
		t.Errorf("account balance = %d, want 70 (billed once)", got)
	}
}

func TestReserve_InvalidAmount(t *testing.T) {
	t.Parallel()

	svc := New(&fakeAccounts{balances: map[int64]int64{}}, &fakePool{}, newFakeJournal())
	if err := svc.Reserve(context.Background(), 1, 0, false, "job-6"); err == nil {
		t.Fatal("expected error for zero amount")
	}
}
