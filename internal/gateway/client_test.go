package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkarimi/sms-platform/internal/model"
)

func newTestClient(srvURL string) *HTTPClient {
	return NewHTTPClient(HTTPClientOpts{
		BaseURL:       srvURL,
		SendPath:      "/api/v1/messages",
		StatusPath:    "/api/v1/messages/status",
		RPS:           1000,
		FailThreshold: 3,
		OpenForMs:     60000,
	})
}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req sendReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Phone != "+989123456789" || req.Body != "hello" {
			t.Errorf("unexpected payload: %+v", req)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"message_id": "carrier-42"})
	}))
	t.Cleanup(srv.Close)

	id, err := newTestClient(srv.URL).Send(context.Background(), "+989123456789", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "carrier-42" {
		t.Fatalf("messageID = %q, want carrier-42", id)
	}
}

func TestSend_PermanentVsTransient(t *testing.T) {
	t.Parallel()

	code := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(srv.URL)

	_, err := c.Send(context.Background(), "+989123456789", "hi")
	var gwErr *Error
	if !errors.As(err, &gwErr) || gwErr.Transient {
		t.Fatalf("expected permanent gateway error on 400, got %v", err)
	}

	code = http.StatusBadGateway
	_, err = c.Send(context.Background(), "+989123456789", "hi")
	if !errors.As(err, &gwErr) || !gwErr.Transient {
		t.Fatalf("expected transient gateway error on 502, got %v", err)
	}
}

func TestSend_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(srv.URL)
	for i := 0; i < 3; i++ {
		_, _ = c.Send(context.Background(), "+989123456789", "hi")
	}

	_, err := c.Send(context.Background(), "+989123456789", "hi")
	var gwErr *Error
	if !errors.As(err, &gwErr) || !gwErr.Transient {
		t.Fatalf("expected transient error from open breaker, got %v", err)
	}
	if gwErr.Msg != "carrier circuit open" {
		t.Fatalf("expected circuit-open error, got %q", gwErr.Msg)
	}
}

func TestCheckStatus_MapsCarrierStates(t *testing.T) {
	t.Parallel()

	carrierStatus := "DELIVRD"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("phone") != "+989123456789" {
			t.Errorf("missing phone query param, got %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": carrierStatus, "network": "MCI"})
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(srv.URL)

	cases := []struct {
		carrier string
		want    model.MessageStatus
	}{
		{"DELIVRD", model.StatusDelivered},
		{"rejected", model.StatusFailed},
		{"expired", model.StatusTimeout},
		{"enroute", model.StatusSent},
	}
	for _, tc := range cases {
		carrierStatus = tc.carrier
		res, err := c.CheckStatus(context.Background(), "carrier-42", "+989123456789")
		if err != nil {
			t.Fatalf("CheckStatus(%s): %v", tc.carrier, err)
		}
		if res.Status != tc.want {
			t.Errorf("CheckStatus(%s) = %s, want %s", tc.carrier, res.Status, tc.want)
		}
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	b := NewBreaker(2, 20*time.Millisecond)
	b.OnFailure()
	b.OnFailure()

	if b.Allow() {
		t.Fatal("expected breaker open right after threshold")
	}

	time.Sleep(30 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected probe allowed after open window")
	}
	if b.Allow() {
		t.Fatal("expected only one probe in flight")
	}

	b.OnSuccess()
	if !b.Allow() {
		t.Fatal("expected breaker closed after successful probe")
	}
}
