package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/mkarimi/sms-platform/internal/model"
)

// ReportsRepository lists message history from ClickHouse (read side).
type ReportsRepository interface {
	ListByAccount(ctx context.Context, accountID int64, phone string, status model.MessageStatus, limit, offset int) ([]model.Message, error)
}

type reportsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewReportsRepository(ch *sqlx.DB) ReportsRepository {
	return &reportsRepository{ch: ch}
}

func (r *reportsRepository) ListByAccount(ctx context.Context, accountID int64, phone string, status model.MessageStatus, limit, offset int) ([]model.Message, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, account_id, job_id, phone, body, status, cost, sent_at
		FROM smspf.messages_latest
		WHERE account_id = ?
	`
	args := []any{accountID}

	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}
	if phone != "" {
		q += " AND phone = ?"
		args = append(args, phone)
	}

	q += " ORDER BY sent_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.Message
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
