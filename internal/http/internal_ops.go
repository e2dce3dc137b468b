package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/mkarimi/sms-platform/internal/poll"
	"github.com/mkarimi/sms-platform/internal/reconcile"
)

// tokenAuthMiddleware guards the internal trigger endpoints with a static
// bearer token. An empty configured token disables the endpoints entirely.
func tokenAuthMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "internal endpoints disabled"})
			}
			got := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}

// reconcileHandler triggers one refund reconciliation pass on demand; the
// cron schedule normally covers this, the endpoint exists for operators.
func reconcileHandler(rec *reconcile.Reconciler) echo.HandlerFunc {
	return func(c echo.Context) error {
		sum, err := rec.Run(c.Request().Context())
		if err != nil {
			log.Errorf("reconcile run failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "reconcile failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"processed": sum.Processed,
			"cancelled": sum.Cancelled,
			"skipped":   sum.Skipped,
			"errors":    sum.Errors,
		})
	}
}

// pollHandler triggers one carrier status poll pass on demand.
func pollHandler(p *poll.Poller) echo.HandlerFunc {
	return func(c echo.Context) error {
		sum, err := p.Run(c.Request().Context())
		if err != nil {
			log.Errorf("poll run failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "poll failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"checked":   sum.Checked,
			"delivered": sum.Delivered,
			"failed":    sum.Failed,
			"timed_out": sum.TimedOut,
			"errors":    sum.Errors,
		})
	}
}
