// Package reconcile finalizes pending refunds after the grace window.
// Refund credit returns to the pool it was drawn from, never to the
// sender's personal balance.
package reconcile

import (
	"context"
	"time"

	"github.com/mkarimi/sms-platform/internal/logger"
	"github.com/mkarimi/sms-platform/internal/metrics"
	"github.com/mkarimi/sms-platform/internal/model"
	"go.uber.org/zap"
)

// Store is the persistence surface the reconciler needs. ProcessRefund and
// CancelRefund are atomic and idempotent: they report false without side
// effects when the refund already reached a terminal state.
type Store interface {
	DueRefunds(ctx context.Context, cutoff time.Time, limit int) ([]model.Refund, error)
	MessageStatus(ctx context.Context, messageID string) (model.MessageStatus, error)
	ProcessRefund(ctx context.Context, rf model.Refund) (bool, error)
	CancelRefund(ctx context.Context, rf model.Refund) (bool, error)
}

type Reconciler struct {
	store Store

	GraceWindow time.Duration // default 48h
	BatchLimit  int           // default 200
}

func New(store Store) *Reconciler {
	return &Reconciler{
		store:       store,
		GraceWindow: 48 * time.Hour,
		BatchLimit:  200,
	}
}

// Summary counts one reconcile run. Per-item errors are isolated: they are
// counted and logged, never abort the run.
type Summary struct {
	Processed int
	Cancelled int
	Skipped   int
	Errors    int
}

// Run selects pending refunds whose message is older than the grace window
// and settles each one. Running twice never double-credits: terminal
// refunds are no-ops.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	cutoff := time.Now().Add(-r.GraceWindow)
	due, err := r.store.DueRefunds(ctx, cutoff, r.BatchLimit)
	if err != nil {
		return sum, err
	}

	for _, rf := range due {
		if err := r.reconcileOne(ctx, rf, &sum); err != nil {
			sum.Errors++
			metrics.RefundsTotal.WithLabelValues("error").Inc()
			logger.Log.Error("refund reconciliation failed",
				zap.String("refund_id", rf.ID),
				zap.String("message_id", rf.MessageID),
				zap.Error(err))
		}
	}

	logger.Log.Info("reconcile run finished",
		zap.Int("due", len(due)),
		zap.Int("processed", sum.Processed),
		zap.Int("cancelled", sum.Cancelled),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", sum.Errors))
	return sum, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, rf model.Refund, sum *Summary) error {
	if rf.Status.Terminal() {
		sum.Skipped++
		return nil
	}

	status, err := r.store.MessageStatus(ctx, rf.MessageID)
	if err != nil {
		return err
	}

	switch status {
	case model.StatusFailed:
		applied, err := r.store.ProcessRefund(ctx, rf)
		if err != nil {
			return err
		}
		if applied {
			sum.Processed++
			metrics.RefundsTotal.WithLabelValues("processed").Inc()
		} else {
			sum.Skipped++
		}
	case model.StatusDelivered:
		applied, err := r.store.CancelRefund(ctx, rf)
		if err != nil {
			return err
		}
		if applied {
			sum.Cancelled++
			metrics.RefundsTotal.WithLabelValues("cancelled").Inc()
		} else {
			sum.Skipped++
		}
	default:
		// still in flight; leave the refund pending for a later run
		sum.Skipped++
	}
	return nil
}
