package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mkarimi/sms-platform/internal/model"
)

type fakeStore struct {
	due       []model.Refund
	statuses  map[string]model.MessageStatus
	statusErr map[string]error

	pooled    int64
	processed map[string]bool
	cancelled map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses:  map[string]model.MessageStatus{},
		statusErr: map[string]error{},
		processed: map[string]bool{},
		cancelled: map[string]bool{},
	}
}

func (f *fakeStore) DueRefunds(_ context.Context, _ time.Time, _ int) ([]model.Refund, error) {
	return f.due, nil
}

func (f *fakeStore) MessageStatus(_ context.Context, messageID string) (model.MessageStatus, error) {
	if err := f.statusErr[messageID]; err != nil {
		return "", err
	}
	return f.statuses[messageID], nil
}

func (f *fakeStore) ProcessRefund(_ context.Context, rf model.Refund) (bool, error) {
	if f.processed[rf.ID] || f.cancelled[rf.ID] {
		return false, nil
	}
	f.processed[rf.ID] = true
	f.pooled += rf.RefundAmount
	return true, nil
}

func (f *fakeStore) CancelRefund(_ context.Context, rf model.Refund) (bool, error) {
	if f.processed[rf.ID] || f.cancelled[rf.ID] {
		return false, nil
	}
	f.cancelled[rf.ID] = true
	return true, nil
}

func pendingRefund(id, msgID string, amount int64) model.Refund {
	return model.Refund{
		ID: id, MessageID: msgID, AccountID: 1,
		OriginalCost: amount, RefundAmount: amount,
		Status: model.RefundPending,
	}
}

func TestRun_ProcessesStillFailedMessages(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.due = []model.Refund{pendingRefund("r1", "m1", 3)}
	st.statuses["m1"] = model.StatusFailed

	sum, err := New(st).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Processed != 1 || sum.Errors != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if st.pooled != 3 {
		t.Fatalf("pooled credit = %d, want 3", st.pooled)
	}
}

func TestRun_CancelsWhenDelivered(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.due = []model.Refund{pendingRefund("r1", "m1", 2)}
	st.statuses["m1"] = model.StatusDelivered

	sum, err := New(st).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Cancelled != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if st.pooled != 0 {
		t.Fatalf("cancelled refund must move no credit, pooled = %d", st.pooled)
	}
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.due = []model.Refund{pendingRefund("r1", "m1", 5)}
	st.statuses["m1"] = model.StatusFailed

	r := New(st)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if st.pooled != 5 {
		t.Fatalf("pooled credit = %d after double run, want 5", st.pooled)
	}
}

func TestRun_PerItemErrorsAreIsolated(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.due = []model.Refund{
		pendingRefund("r1", "m1", 1),
		pendingRefund("r2", "m2", 1),
		pendingRefund("r3", "m3", 1),
	}
	st.statuses["m1"] = model.StatusFailed
	st.statusErr["m2"] = errors.New("db hiccup")
	st.statuses["m3"] = model.StatusFailed

	sum, err := New(st).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Processed != 2 || sum.Errors != 1 {
		t.Fatalf("summary = %+v, want 2 processed and 1 error", sum)
	}
}

func TestRun_LeavesInFlightPending(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.due = []model.Refund{pendingRefund("r1", "m1", 1)}
	st.statuses["m1"] = model.StatusSent

	sum, err := New(st).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Skipped != 1 || sum.Processed != 0 || sum.Cancelled != 0 {
		t.Fatalf("summary = %+v, want only a skip", sum)
	}
}
