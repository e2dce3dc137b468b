package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/mkarimi/sms-platform/internal/dispatch"
	"github.com/mkarimi/sms-platform/internal/http/middleware"
	"github.com/mkarimi/sms-platform/internal/ledger"
)

type dispatchReq struct {
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

// dispatchHandler accepts a bulk submission, reserves credit synchronously
// and detaches the fan-out. The response carries the job id for progress
// polling; it never waits for sends.
func dispatchHandler(orch *dispatch.Orchestrator, credits *ledger.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		acctID, ok := middleware.AccountIDFromCtx(c)
		if !ok || acctID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req dispatchReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		jobID, totalCost, err := orch.Submit(c.Request().Context(), dispatch.Request{
			Message:    req.Message,
			Recipients: req.Recipients,
			SenderID:   acctID,
			Privileged: middleware.PrivilegedFromCtx(c),
		})
		if err != nil {
			var ice *ledger.InsufficientCreditError
			switch {
			case errors.As(err, &ice):
				return c.JSON(http.StatusPaymentRequired, map[string]any{
					"error":  "insufficient_credit",
					"scope":  string(ice.Scope),
					"amount": ice.Amount,
				})
			case errors.Is(err, dispatch.ErrEmptyMessage),
				errors.Is(err, dispatch.ErrNoRecipients),
				errors.Is(err, dispatch.ErrNoValidRecipients):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			case errors.Is(err, ledger.ErrDuplicateReservation):
				return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
			}

			log.Errorf("dispatch submit failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "dispatch error"})
		}

		resp := map[string]any{
			"job_id":     jobID,
			"total_cost": totalCost,
		}
		if pooled, err := credits.GetPooled(c.Request().Context()); err == nil {
			resp["pooled_remaining"] = pooled
		}
		return c.JSON(http.StatusAccepted, resp)
	}
}
