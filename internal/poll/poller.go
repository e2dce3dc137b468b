// Package poll re-checks "sent" messages for delayed carrier outcomes. It
// covers sends the carrier accepted but failed asynchronously after the
// initial acknowledgment.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/mkarimi/sms-platform/internal/gateway"
	"github.com/mkarimi/sms-platform/internal/logger"
	"github.com/mkarimi/sms-platform/internal/metrics"
	"github.com/mkarimi/sms-platform/internal/model"
	"go.uber.org/zap"
)

// Store is the persistence surface the poller needs. Status transitions are
// conditional on the row still being "sent", so a message leaves that state
// at most once no matter how many runs race.
type Store interface {
	SentMessages(ctx context.Context, cutoff time.Time, limit int) ([]model.Message, error)
	MarkDelivered(ctx context.Context, messageID string, at time.Time) (bool, error)
	MarkTimeout(ctx context.Context, messageID string, at time.Time) (bool, error)

	// FailMessage stamps failed_at and, when createRefund is set, inserts
	// the pending refund in the same transaction.
	FailMessage(ctx context.Context, msg model.Message, reason string, at time.Time, createRefund bool) (bool, error)

	HasPendingRefund(ctx context.Context, messageID string) (bool, error)
	IsPrivileged(ctx context.Context, accountID int64) (bool, error)
}

type Poller struct {
	store Store
	gw    gateway.Client

	GraceWindow     time.Duration // default 5m
	BatchLimit      int           // default 100
	TerminalTimeout time.Duration // default 72h; unresolved sends become "timeout"
}

func New(store Store, gw gateway.Client) *Poller {
	return &Poller{
		store:           store,
		gw:              gw,
		GraceWindow:     5 * time.Minute,
		BatchLimit:      100,
		TerminalTimeout: 72 * time.Hour,
	}
}

// Summary counts one poll run. Per-item errors are isolated.
type Summary struct {
	Checked   int
	Delivered int
	Failed    int
	TimedOut  int
	Errors    int
}

// Run selects messages still "sent" past the grace window and resolves each
// against the carrier.
func (p *Poller) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	cutoff := time.Now().Add(-p.GraceWindow)
	msgs, err := p.store.SentMessages(ctx, cutoff, p.BatchLimit)
	if err != nil {
		return sum, err
	}

	for _, m := range msgs {
		sum.Checked++
		if err := p.pollOne(ctx, m, &sum); err != nil {
			sum.Errors++
			metrics.PollTransitionsTotal.WithLabelValues("error").Inc()
			logger.Log.Error("status poll failed",
				zap.String("message_id", m.ID),
				zap.Error(err))
		}
	}

	logger.Log.Info("poll run finished",
		zap.Int("checked", sum.Checked),
		zap.Int("delivered", sum.Delivered),
		zap.Int("failed", sum.Failed),
		zap.Int("timed_out", sum.TimedOut),
		zap.Int("errors", sum.Errors))
	return sum, nil
}

func (p *Poller) pollOne(ctx context.Context, m model.Message, sum *Summary) error {
	res, err := p.gw.CheckStatus(ctx, m.CarrierMessageID.String, m.Phone)
	if err != nil {
		return fmt.Errorf("check status: %w", err)
	}

	now := time.Now()
	switch res.Status {
	case model.StatusDelivered:
		applied, err := p.store.MarkDelivered(ctx, m.ID, now)
		if err != nil {
			return err
		}
		if applied {
			sum.Delivered++
			metrics.PollTransitionsTotal.WithLabelValues("delivered").Inc()
		}
		return nil

	case model.StatusFailed:
		return p.failOne(ctx, m, res, now, sum)

	case model.StatusTimeout:
		applied, err := p.store.MarkTimeout(ctx, m.ID, now)
		if err != nil {
			return err
		}
		if applied {
			sum.TimedOut++
			metrics.PollTransitionsTotal.WithLabelValues("timeout").Inc()
		}
		return nil

	default:
		// still pending at the carrier; after the terminal window stop
		// waiting and park the message in "timeout"
		if now.Sub(m.SentAt) > p.TerminalTimeout {
			applied, err := p.store.MarkTimeout(ctx, m.ID, now)
			if err != nil {
				return err
			}
			if applied {
				sum.TimedOut++
				metrics.PollTransitionsTotal.WithLabelValues("timeout").Inc()
			}
		}
		return nil
	}
}

func (p *Poller) failOne(ctx context.Context, m model.Message, res gateway.StatusResult, now time.Time, sum *Summary) error {
	createRefund := false
	privileged, err := p.store.IsPrivileged(ctx, m.AccountID)
	if err != nil {
		return err
	}
	if !privileged {
		hasPending, err := p.store.HasPendingRefund(ctx, m.ID)
		if err != nil {
			return err
		}
		createRefund = !hasPending
	}

	reason := fmt.Sprintf("carrier reported failure for %s", m.Phone)
	if res.Network != "" {
		reason += " via " + res.Network
	}

	applied, err := p.store.FailMessage(ctx, m, reason, now, createRefund)
	if err != nil {
		return err
	}
	if applied {
		sum.Failed++
		metrics.PollTransitionsTotal.WithLabelValues("failed").Inc()
	}
	return nil
}
