// Package dispatch drives the bulk send pipeline: validate, reserve credit,
// fan out to the carrier under a bounded concurrency window, persist
// outcomes and report progress.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mkarimi/sms-platform/internal/gateway"
	"github.com/mkarimi/sms-platform/internal/logger"
	"github.com/mkarimi/sms-platform/internal/metrics"
	"github.com/mkarimi/sms-platform/internal/model"
	"github.com/mkarimi/sms-platform/internal/progress"
	"github.com/mkarimi/sms-platform/internal/recorder"
	"github.com/mkarimi/sms-platform/internal/util"
	"go.uber.org/zap"
)

var (
	ErrEmptyMessage      = errors.New("message body is empty")
	ErrNoRecipients      = errors.New("recipient list is empty")
	ErrNoValidRecipients = errors.New("no valid recipients after normalization")
)

// segmentLen is the number of characters covered by one credit.
const segmentLen = 180

// CreditsPerMessage computes the per-recipient cost in credits:
// max(1, ceil(len/180)).
func CreditsPerMessage(body string) int64 {
	n := utf8.RuneCountInString(body)
	if n <= segmentLen {
		return 1
	}
	return int64((n + segmentLen - 1) / segmentLen)
}

// CreditReserver is the slice of the ledger the orchestrator needs.
type CreditReserver interface {
	Reserve(ctx context.Context, accountID, amount int64, privileged bool, jobID string) error
}

// OutcomeRecorder persists batch results.
type OutcomeRecorder interface {
	RecordSuccess(ctx context.Context, batch []recorder.Outcome) error
	RecordFailure(ctx context.Context, batch []recorder.Outcome, refundEligible bool) error
}

// Config tunes batching and throttling. The defaults keep the fan-out under
// the carrier's undocumented per-request ceiling; they come from
// configuration, never hardcoded call sites.
type Config struct {
	BatchSize   int           // recipients per batch (default 50)
	WindowSize  int           // in-flight sends per window (default 10)
	WindowDelay time.Duration // pause between windows (default 50ms)
	BatchDelay  time.Duration // pause between batches (default 100ms)
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 10
	}
	if c.WindowDelay <= 0 {
		c.WindowDelay = 50 * time.Millisecond
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 100 * time.Millisecond
	}
	return c
}

// Request is one bulk dispatch submission.
type Request struct {
	Message    string
	Recipients []string
	SenderID   int64
	Privileged bool
}

// Result summarizes a finished dispatch.
type Result struct {
	JobID           string
	Sent            int
	Failed          int
	TotalCost       int64
	MessageIDs      []string
	RecipientErrors []model.RecipientError
}

type Orchestrator struct {
	gw      gateway.Client
	credit  CreditReserver
	rec     OutcomeRecorder
	tracker *progress.Tracker
	cfg     Config
}

func NewOrchestrator(
	gw gateway.Client,
	credit CreditReserver,
	rec OutcomeRecorder,
	tracker *progress.Tracker,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		gw:      gw,
		credit:  credit,
		rec:     rec,
		tracker: tracker,
		cfg:     cfg.withDefaults(),
	}
}

type preparedJob struct {
	jobID           string
	message         string
	recipients      []string
	senderID        int64
	privileged      bool
	costPerMessage  int64
	totalCost       int64
	totalBatches    int
	recipientErrors []model.RecipientError
}

// prepare validates the request, normalizes and dedups recipients, and
// reserves credit. Any error here means zero side effects beyond the
// already-compensated ledger calls.
func (o *Orchestrator) prepare(ctx context.Context, req Request) (*preparedJob, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	var (
		valid   []string
		seen    = make(map[string]struct{}, len(req.Recipients))
		perErrs []model.RecipientError
	)
	for _, raw := range req.Recipients {
		phone, err := util.FormatRecipient(raw)
		if err != nil {
			perErrs = append(perErrs, model.RecipientError{Phone: raw, Reason: err.Error()})
			continue
		}
		if _, dup := seen[phone]; dup {
			continue
		}
		seen[phone] = struct{}{}
		valid = append(valid, phone)
	}
	if len(valid) == 0 {
		return nil, ErrNoValidRecipients
	}

	costPer := CreditsPerMessage(msg)
	total := costPer * int64(len(valid))

	jobID := util.NewID()
	if err := o.credit.Reserve(ctx, req.SenderID, total, req.Privileged, jobID); err != nil {
		return nil, err
	}

	batches := (len(valid) + o.cfg.BatchSize - 1) / o.cfg.BatchSize
	o.tracker.Create(jobID, len(valid), batches)

	return &preparedJob{
		jobID:           jobID,
		message:         msg,
		recipients:      valid,
		senderID:        req.SenderID,
		privileged:      req.Privileged,
		costPerMessage:  costPer,
		totalCost:       total,
		totalBatches:    batches,
		recipientErrors: perErrs,
	}, nil
}

// Dispatch runs the whole pipeline synchronously and returns the final
// result.
func (o *Orchestrator) Dispatch(ctx context.Context, req Request) (*Result, error) {
	p, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, p), nil
}

// Submit reserves credit and creates the job synchronously, then detaches
// the batch loop into a background goroutine; progress is polled by job id.
// There is no cancellation once a job starts.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (jobID string, totalCost int64, err error) {
	p, err := o.prepare(ctx, req)
	if err != nil {
		return "", 0, err
	}
	go o.run(context.WithoutCancel(ctx), p)
	return p.jobID, p.totalCost, nil
}

// run executes batches strictly in submission order. Per-recipient failures
// are isolated; they are recorded and counted but never abort the batch or
// the job.
func (o *Orchestrator) run(ctx context.Context, p *preparedJob) *Result {
	o.tracker.Update(p.jobID, progress.Update{Status: model.JobProcessing})

	var (
		sent, failed int
		messageIDs   []string
	)

	for start := 0; start < len(p.recipients); start += o.cfg.BatchSize {
		end := min(start+o.cfg.BatchSize, len(p.recipients))
		batchIdx := start/o.cfg.BatchSize + 1

		outcomes := o.sendBatch(ctx, p, p.recipients[start:end])

		var ok, bad []recorder.Outcome
		for _, oc := range outcomes {
			if oc.Err == "" {
				ok = append(ok, oc)
			} else {
				bad = append(bad, oc)
			}
		}

		if err := o.rec.RecordSuccess(ctx, ok); err != nil {
			// Reserved credit must not be stranded on a persistence
			// failure: demote the batch to failed rows with refunds.
			logger.Log.Error("record success failed, demoting batch",
				zap.String("job_id", p.jobID), zap.Error(err))
			for i := range ok {
				ok[i].Err = fmt.Sprintf("persist failed: %v", err)
			}
			bad = append(bad, ok...)
			ok = nil
		}
		if err := o.rec.RecordFailure(ctx, bad, !p.privileged); err != nil {
			logger.Log.Error("record failure failed",
				zap.String("job_id", p.jobID), zap.Int("count", len(bad)), zap.Error(err))
		}

		sent += len(ok)
		failed += len(bad)
		for _, oc := range ok {
			messageIDs = append(messageIDs, oc.MessageID)
		}
		metrics.MessagesTotal.WithLabelValues("sent").Add(float64(len(ok)))
		metrics.MessagesTotal.WithLabelValues("failed").Add(float64(len(bad)))

		o.tracker.Update(p.jobID, progress.Update{
			Completed:    sent + failed,
			Success:      sent,
			Failed:       failed,
			CurrentBatch: batchIdx,
			Status:       model.JobProcessing,
		})

		if end < len(p.recipients) {
			time.Sleep(o.cfg.BatchDelay)
		}
	}

	final := model.JobCompleted
	var jobErr string
	if sent == 0 {
		final = model.JobFailed
		jobErr = "all sends failed; reserved credit is refunded after the grace window"
	}
	o.tracker.Update(p.jobID, progress.Update{
		Completed:    sent + failed,
		Success:      sent,
		Failed:       failed,
		CurrentBatch: p.totalBatches,
		Status:       final,
		Error:        jobErr,
	})
	metrics.JobsTotal.WithLabelValues(final.String()).Inc()

	return &Result{
		JobID:           p.jobID,
		Sent:            sent,
		Failed:          failed,
		TotalCost:       p.totalCost,
		MessageIDs:      messageIDs,
		RecipientErrors: p.recipientErrors,
	}
}

// sendBatch dispatches one batch in fixed-size concurrency windows with a
// short delay between windows. Completion order within a window is
// unordered; outcome slots are index-disjoint so no lock is needed.
func (o *Orchestrator) sendBatch(ctx context.Context, p *preparedJob, batch []string) []recorder.Outcome {
	outcomes := make([]recorder.Outcome, len(batch))

	for start := 0; start < len(batch); start += o.cfg.WindowSize {
		end := min(start+o.cfg.WindowSize, len(batch))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = o.sendOne(ctx, p, batch[i])
			}(i)
		}
		wg.Wait()

		if end < len(batch) {
			time.Sleep(o.cfg.WindowDelay)
		}
	}
	return outcomes
}

func (o *Orchestrator) sendOne(ctx context.Context, p *preparedJob, phone string) recorder.Outcome {
	oc := recorder.Outcome{
		MessageID: util.NewID(),
		JobID:     p.jobID,
		AccountID: p.senderID,
		Phone:     phone,
		Body:      p.message,
		Cost:      p.costPerMessage,
		At:        time.Now(),
	}

	carrierID, err := o.gw.Send(ctx, phone, p.message)
	if err != nil {
		oc.Err = err.Error()
		return oc
	}
	oc.CarrierMessageID = carrierID
	return oc
}
