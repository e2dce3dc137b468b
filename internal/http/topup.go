package http

import (
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
	"github.com/mkarimi/sms-platform/internal/http/middleware"
	"github.com/mkarimi/sms-platform/internal/repository"
)

type topupReq struct {
	Amount    int64  `json:"amount"`
	RequestID string `json:"request_id"`
}

// TopupHandler : account credit topup endpoint (idempotent).
func TopupHandler(db *sqlx.DB, accounts repository.AccountsRepository, journal repository.JournalRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		accountID, ok := middleware.AccountIDFromCtx(c)
		if !ok || accountID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req topupReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.RequestID = strings.TrimSpace(req.RequestID)
		if req.Amount <= 0 || req.RequestID == "" || len(req.RequestID) > 128 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		}

		idem := "topup-" + req.RequestID

		tx, err := db.BeginTxx(c.Request().Context(), nil)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		defer func() { _ = tx.Rollback() }()

		exists, err := journal.ExistsByIdem(c.Request().Context(), idem)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		if exists {
			if err := tx.Commit(); err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}

			return c.JSON(http.StatusOK, map[string]any{
				"topup":      true,
				"idempotent": true,
				"amount":     req.Amount,
				"account_id": accountID,
				"request_id": req.RequestID,
			})
		}

		if err := journal.InsertTopup(c.Request().Context(), tx, accountID, req.Amount, idem); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		if err := accounts.Topup(c.Request().Context(), tx, accountID, req.Amount); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		if err := tx.Commit(); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"topup":      true,
			"idempotent": false,
			"amount":     req.Amount,
			"account_id": accountID,
			"request_id": req.RequestID,
		})
	}
}
