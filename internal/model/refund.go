package model

import "time"

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
	RefundCancelled RefundStatus = "cancelled"
)

func (s RefundStatus) String() string { return string(s) }

func (s RefundStatus) Terminal() bool {
	return s == RefundProcessed || s == RefundCancelled
}

// Refund is a compensation request for a failed send, 1:1 with the message
// that triggered it. At most one pending refund may exist per message.
// RefundAmount always equals the message cost.
type Refund struct {
	ID           string       `db:"id"`
	AccountID    int64        `db:"account_id"`
	MessageID    string       `db:"message_id"`
	OriginalCost int64        `db:"original_cost"`
	RefundAmount int64        `db:"refund_amount"`
	Reason       string       `db:"reason"`
	Status       RefundStatus `db:"status"`
	CreatedAt    time.Time    `db:"created_at"`
	ProcessedAt  *time.Time   `db:"processed_at"`
}
