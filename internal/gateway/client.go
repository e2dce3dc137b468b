// Package gateway talks to the external carrier. The carrier protocol is
// opaque to the rest of the platform: callers see Send/CheckStatus and a
// transient/permanent error split.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkarimi/sms-platform/internal/model"
	"golang.org/x/time/rate"
)

// Error wraps a carrier failure. Transient failures (timeouts, 5xx, open
// breaker) may succeed on a later attempt; permanent ones will not.
type Error struct {
	Transient bool
	Msg       string
}

func (e *Error) Error() string { return e.Msg }

// StatusResult is the carrier's view of a previously accepted message.
type StatusResult struct {
	Status  model.MessageStatus
	Network string
}

// Client is the carrier surface used by the orchestrator and the poller.
type Client interface {
	Send(ctx context.Context, phone, body string) (messageID string, err error)
	CheckStatus(ctx context.Context, messageID, phone string) (StatusResult, error)
}

type HTTPClient struct {
	baseURL    string
	sendPath   string
	statusPath string
	apiKey     string
	client     *http.Client
	br         *Breaker
	limiter    *rate.Limiter
}

type HTTPClientOpts struct {
	BaseURL       string
	SendPath      string
	StatusPath    string
	APIKey        string
	TimeoutMs     int
	RPS           int
	FailThreshold int
	OpenForMs     int
}

func NewHTTPClient(opts HTTPClientOpts) *HTTPClient {
	if opts.TimeoutMs <= 0 {
		opts.TimeoutMs = 3000
	}
	if opts.RPS <= 0 {
		opts.RPS = 100
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		sendPath:   opts.SendPath,
		statusPath: opts.StatusPath,
		apiKey:     opts.APIKey,
		client:     &http.Client{Timeout: time.Duration(opts.TimeoutMs) * time.Millisecond},
		br:         NewBreaker(opts.FailThreshold, time.Duration(opts.OpenForMs)*time.Millisecond),
		limiter:    rate.NewLimiter(rate.Limit(opts.RPS), opts.RPS),
	}
}

var _ Client = (*HTTPClient)(nil)

type sendReq struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

type sendResp struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

func (c *HTTPClient) Send(ctx context.Context, phone, body string) (string, error) {
	if !c.br.Allow() {
		return "", &Error{Transient: true, Msg: "carrier circuit open"}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &Error{Transient: true, Msg: err.Error()}
	}

	payload, _ := json.Marshal(sendReq{Phone: phone, Body: body})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.sendPath, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Transient: false, Msg: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.br.OnFailure()
		return "", &Error{Transient: true, Msg: err.Error()}
	}
	defer res.Body.Close()

	var out sendResp
	_ = json.NewDecoder(res.Body).Decode(&out)

	switch {
	case res.StatusCode/100 == 2:
		c.br.OnSuccess()
		if out.MessageID == "" {
			return "", &Error{Transient: false, Msg: "carrier accepted without message id"}
		}
		return out.MessageID, nil
	case res.StatusCode/100 == 5:
		c.br.OnFailure()
		return "", &Error{Transient: true, Msg: fmt.Sprintf("carrier status=%d error=%s", res.StatusCode, out.Error)}
	default:
		c.br.OnSuccess() // the carrier is up, it just rejected this message
		return "", &Error{Transient: false, Msg: fmt.Sprintf("carrier status=%d error=%s", res.StatusCode, out.Error)}
	}
}

type statusResp struct {
	Status  string `json:"status"`
	Network string `json:"network"`
	Error   string `json:"error"`
}

func (c *HTTPClient) CheckStatus(ctx context.Context, messageID, phone string) (StatusResult, error) {
	if !c.br.Allow() {
		return StatusResult{}, &Error{Transient: true, Msg: "carrier circuit open"}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return StatusResult{}, &Error{Transient: true, Msg: err.Error()}
	}

	u := c.baseURL + c.statusPath + "/" + url.PathEscape(messageID)
	if phone != "" {
		u += "?phone=" + url.QueryEscape(phone)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return StatusResult{}, &Error{Transient: false, Msg: err.Error()}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.br.OnFailure()
		return StatusResult{}, &Error{Transient: true, Msg: err.Error()}
	}
	defer res.Body.Close()

	var out statusResp
	_ = json.NewDecoder(res.Body).Decode(&out)

	if res.StatusCode/100 != 2 {
		if res.StatusCode/100 == 5 {
			c.br.OnFailure()
			return StatusResult{}, &Error{Transient: true, Msg: fmt.Sprintf("carrier status=%d error=%s", res.StatusCode, out.Error)}
		}
		c.br.OnSuccess()
		return StatusResult{}, &Error{Transient: false, Msg: fmt.Sprintf("carrier status=%d error=%s", res.StatusCode, out.Error)}
	}

	c.br.OnSuccess()
	return StatusResult{Status: mapCarrierStatus(out.Status), Network: out.Network}, nil
}

// mapCarrierStatus folds carrier-specific states into the canonical set.
func mapCarrierStatus(raw string) model.MessageStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "delivered", "delivrd":
		return model.StatusDelivered
	case "failed", "undelivered", "undeliv", "rejected", "rejectd":
		return model.StatusFailed
	case "expired", "timeout":
		return model.StatusTimeout
	default:
		// accepted/pending/enroute and anything unknown stays "sent"
		return model.StatusSent
	}
}
