// Package progress holds ephemeral per-job dispatch state. The store is
// process-local and not durable across restarts; that is an accepted
// limitation of the in-process dispatch model.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/mkarimi/sms-platform/internal/logger"
	"github.com/mkarimi/sms-platform/internal/model"
	"go.uber.org/zap"
)

type Tracker struct {
	mu        sync.RWMutex
	jobs      map[string]*model.DispatchJob
	retention time.Duration
}

func NewTracker(retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Tracker{
		jobs:      make(map[string]*model.DispatchJob),
		retention: retention,
	}
}

func (t *Tracker) Create(jobID string, total, totalBatches int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[jobID] = &model.DispatchJob{
		ID:           jobID,
		Total:        total,
		TotalBatches: totalBatches,
		Status:       model.JobPending,
		StartedAt:    time.Now(),
	}
}

// Update carries fully recomputed counters, never deltas, so concurrent
// batch writers cannot lose updates.
type Update struct {
	Completed    int
	Success      int
	Failed       int
	CurrentBatch int
	Status       model.JobStatus
	Error        string
}

func (t *Tracker) Update(jobID string, u Update) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[jobID]
	if !ok {
		return false
	}
	j.Completed = u.Completed
	j.Success = u.Success
	j.Failed = u.Failed
	j.CurrentBatch = u.CurrentBatch
	if u.Status != "" {
		j.Status = u.Status
	}
	if u.Error != "" {
		j.Error = u.Error
	}
	if j.Status.Terminal() && j.CompletedAt == nil {
		now := time.Now()
		j.CompletedAt = &now
	}
	return true
}

// View is the snapshot returned to pollers, with derived fields.
type View struct {
	model.DispatchJob
	Percentage    float64
	EstimatedTime time.Duration // remaining; zero when unknown
}

func (t *Tracker) Get(jobID string) (View, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	j, ok := t.jobs[jobID]
	if !ok {
		return View{}, false
	}

	v := View{DispatchJob: *j}
	if j.Total > 0 {
		v.Percentage = float64(j.Completed) / float64(j.Total) * 100
	}
	if j.Status == model.JobProcessing && j.Completed > 0 {
		elapsed := time.Since(j.StartedAt)
		remaining := j.Total - j.Completed
		v.EstimatedTime = time.Duration(float64(elapsed) / float64(j.Completed) * float64(remaining))
	}
	return v, true
}

// Sweep evicts jobs whose completion is older than the retention window and
// returns how many were removed.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for id, j := range t.jobs {
		if j.CompletedAt != nil && now.Sub(*j.CompletedAt) > t.retention {
			delete(t.jobs, id)
			evicted++
		}
	}
	return evicted
}

// RunSweeper periodically evicts stale jobs until ctx is cancelled.
func (t *Tracker) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if n := t.Sweep(time.Now()); n > 0 {
				logger.Log.Info("evicted stale dispatch jobs", zap.Int("count", n))
			}
		}
	}
}
