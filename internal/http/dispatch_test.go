package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mkarimi/sms-platform/internal/dispatch"
	"github.com/mkarimi/sms-platform/internal/gateway"
	"github.com/mkarimi/sms-platform/internal/ledger"
	"github.com/mkarimi/sms-platform/internal/progress"
	"github.com/mkarimi/sms-platform/internal/recorder"
)

type sendOnlyGateway struct{}

func (sendOnlyGateway) Send(context.Context, string, string) (string, error) {
	return "carrier-1", nil
}

func (sendOnlyGateway) CheckStatus(context.Context, string, string) (gateway.StatusResult, error) {
	return gateway.StatusResult{}, nil
}

type fakeAccounts struct {
	mu       sync.Mutex
	balances map[int64]int64
}

func (f *fakeAccounts) Debit(_ context.Context, id, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[id] < amount {
		return false, nil
	}
	f.balances[id] -= amount
	return true, nil
}

func (f *fakeAccounts) Credit(_ context.Context, id, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[id] += amount
	return nil
}

type fakePool struct {
	mu      sync.Mutex
	balance int64
}

func (f *fakePool) Balance(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakePool) Set(_ context.Context, v int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = v
	return nil
}

func (f *fakePool) Debit(_ context.Context, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance < amount {
		return false, nil
	}
	f.balance -= amount
	return true, nil
}

type fakeJournal struct{}

func (fakeJournal) ExistsByIdem(context.Context, string) (bool, error)        { return false, nil }
func (fakeJournal) InsertReserve(context.Context, int64, int64, string) error { return nil }
func (fakeJournal) InsertRelease(context.Context, int64, int64, string) error { return nil }

type fakeRecorder struct{}

func (fakeRecorder) RecordSuccess(context.Context, []recorder.Outcome) error { return nil }
func (fakeRecorder) RecordFailure(context.Context, []recorder.Outcome, bool) error {
	return nil
}

func newTestHandler(userBalance, poolBalance int64) (echo.HandlerFunc, *progress.Tracker) {
	accounts := &fakeAccounts{balances: map[int64]int64{1: userBalance}}
	pool := &fakePool{balance: poolBalance}
	credits := ledger.New(accounts, pool, fakeJournal{})
	tracker := progress.NewTracker(time.Hour)
	orch := dispatch.NewOrchestrator(sendOnlyGateway{}, credits, fakeRecorder{}, tracker, dispatch.Config{
		WindowDelay: time.Millisecond,
		BatchDelay:  time.Millisecond,
	})
	return dispatchHandler(orch, credits), tracker
}

func doDispatch(t *testing.T, h echo.HandlerFunc, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("account_id", int64(1))

	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, resp
}

func TestDispatchHandler_Accepted(t *testing.T) {
	t.Parallel()

	h, tracker := newTestHandler(100, 100)
	rec, resp := doDispatch(t, h, `{"message":"hello","recipients":["+989123456789","+989123456780"]}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	jobID, _ := resp["job_id"].(string)
	if jobID == "" {
		t.Fatal("response missing job_id")
	}
	if got := resp["total_cost"].(float64); got != 2 {
		t.Fatalf("total_cost = %v, want 2", got)
	}
	if _, ok := tracker.Get(jobID); !ok {
		t.Fatal("job not registered in tracker")
	}
}

func TestDispatchHandler_EmptyMessage(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(100, 100)
	rec, _ := doDispatch(t, h, `{"message":"  ","recipients":["+989123456789"]}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDispatchHandler_InsufficientCredit(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(0, 100)
	rec, resp := doDispatch(t, h, `{"message":"hello","recipients":["+989123456789"]}`)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if resp["scope"] != "user" {
		t.Fatalf("scope = %v, want user", resp["scope"])
	}
}

func TestJobStatusHandler(t *testing.T) {
	t.Parallel()

	tracker := progress.NewTracker(time.Hour)
	tracker.Create("job-1", 10, 1)
	h := jobStatusHandler(tracker)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("account_id", int64(1))
	c.SetParamNames("id")
	c.SetParamValues("job-1")

	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "pending" || resp["total"].(float64) != 10 {
		t.Fatalf("unexpected view: %v", resp)
	}

	// unknown job
	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.Set("account_id", int64(1))
	c.SetParamNames("id")
	c.SetParamValues("missing")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
