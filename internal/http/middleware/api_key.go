package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/mkarimi/sms-platform/internal/repository"
)

// AccountIDFromCtx extracts the authenticated account_id set by APIKeyMiddleware.
func AccountIDFromCtx(c echo.Context) (int64, bool) {
	v := c.Get("account_id")
	id, ok := v.(int64)
	return id, ok
}

// PrivilegedFromCtx reports whether the authenticated account bills the
// shared pool only.
func PrivilegedFromCtx(c echo.Context) bool {
	v, ok := c.Get("account_privileged").(bool)
	return ok && v
}

// APIKeyMiddleware authenticates requests using the X-API-Key header.
// On success it stores account_id in context and blocks suspended accounts.
func APIKeyMiddleware(accounts repository.AccountsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			a, err := accounts.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if a == nil || a.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set("account_id", a.ID)
			c.Set("account_privileged", a.Privileged)
			if a.RateLimitRPS != nil {
				c.Set("account_rps", *a.RateLimitRPS)
			}
			return next(c)
		}
	}
}
