package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/mkarimi/sms-platform/internal/model"
)

func TestTracker_CreateUpdateGet(t *testing.T) {
	t.Parallel()

	tr := NewTracker(time.Hour)
	tr.Create("job-1", 120, 3)

	v, ok := tr.Get("job-1")
	if !ok {
		t.Fatal("job not found")
	}
	if v.Status != model.JobPending || v.Total != 120 || v.TotalBatches != 3 {
		t.Fatalf("unexpected initial view: %+v", v)
	}

	if ok := tr.Update("job-1", Update{
		Completed: 50, Success: 48, Failed: 2, CurrentBatch: 1, Status: model.JobProcessing,
	}); !ok {
		t.Fatal("update failed")
	}

	v, _ = tr.Get("job-1")
	if v.Completed != 50 || v.Success != 48 || v.Failed != 2 {
		t.Fatalf("counters not applied: %+v", v)
	}
	if want := float64(50) / 120 * 100; v.Percentage != want {
		t.Errorf("percentage = %v, want %v", v.Percentage, want)
	}
	if v.EstimatedTime <= 0 {
		t.Errorf("expected a positive ETA while processing, got %v", v.EstimatedTime)
	}
}

func TestTracker_TerminalStampsCompletedAt(t *testing.T) {
	t.Parallel()

	tr := NewTracker(time.Hour)
	tr.Create("job-2", 10, 1)
	tr.Update("job-2", Update{Completed: 10, Success: 10, Status: model.JobCompleted})

	v, _ := tr.Get("job-2")
	if v.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be stamped on terminal status")
	}
	if v.EstimatedTime != 0 {
		t.Errorf("terminal job should have no ETA, got %v", v.EstimatedTime)
	}
}

func TestTracker_UnknownJob(t *testing.T) {
	t.Parallel()

	tr := NewTracker(time.Hour)
	if _, ok := tr.Get("nope"); ok {
		t.Fatal("expected miss for unknown job")
	}
	if ok := tr.Update("nope", Update{}); ok {
		t.Fatal("expected update miss for unknown job")
	}
}

func TestTracker_SweepEvictsOldCompleted(t *testing.T) {
	t.Parallel()

	tr := NewTracker(time.Minute)
	tr.Create("old", 1, 1)
	tr.Update("old", Update{Completed: 1, Success: 1, Status: model.JobCompleted})
	tr.Create("running", 10, 1)
	tr.Update("running", Update{Completed: 3, Status: model.JobProcessing})

	if n := tr.Sweep(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if _, ok := tr.Get("old"); ok {
		t.Error("completed job should be evicted")
	}
	if _, ok := tr.Get("running"); !ok {
		t.Error("running job must survive the sweep")
	}
}

func TestTracker_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	tr := NewTracker(time.Hour)
	tr.Create("job-3", 1000, 20)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tr.Update("job-3", Update{Completed: n * 10, CurrentBatch: n % 20, Status: model.JobProcessing})
			_, _ = tr.Get("job-3")
		}(i)
	}
	wg.Wait()

	v, ok := tr.Get("job-3")
	if !ok {
		t.Fatal("job vanished")
	}
	if v.Completed%10 != 0 || v.Completed < 10 || v.Completed > 1000 {
		t.Fatalf("completed = %d, expected one of the written snapshots", v.Completed)
	}
}
