package model

import (
	"database/sql"
	"time"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
	StatusTimeout   MessageStatus = "timeout"
)

func (s MessageStatus) String() string {
	return string(s)
}

func (s MessageStatus) Valid() bool {
	return s == StatusSent || s == StatusDelivered || s == StatusFailed || s == StatusTimeout
}

// Terminal reports whether the status can no longer change.
func (s MessageStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusTimeout
}

// Message is the DB entity persisted in the messages table. One row per
// recipient per dispatch attempt. Immutable after insert except for the
// status transition (and its timestamp) and the refund_processed flag.
type Message struct {
	ID               string         `db:"id"`
	AccountID        int64          `db:"account_id"`
	JobID            string         `db:"job_id"`
	Phone            string         `db:"phone"`
	Body             string         `db:"body"`
	Status           MessageStatus  `db:"status"`
	Cost             int64          `db:"cost"`
	CarrierMessageID sql.NullString `db:"carrier_message_id"`
	SentAt           time.Time      `db:"sent_at"`
	DeliveredAt      *time.Time     `db:"delivered_at"`
	FailedAt         *time.Time     `db:"failed_at"`
	RefundProcessed  bool           `db:"refund_processed"`
}
