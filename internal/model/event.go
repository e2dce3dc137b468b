package model

import "time"

// OutcomeEvent is the payload written to the outbox for every recorded
// message outcome; the relay worker ships it to Kafka.
type OutcomeEvent struct {
	MessageID string        `json:"message_id"`
	JobID     string        `json:"job_id"`
	AccountID int64         `json:"account_id"`
	Phone     string        `json:"phone"`
	Status    MessageStatus `json:"status"`
	Cost      int64         `json:"cost"`
}

// OutboxEvent is a row in the outbox table.
type OutboxEvent struct {
	ID          int64      `db:"id"`
	Aggregate   string     `db:"aggregate"`
	AggregateID string     `db:"aggregate_id"`
	Topic       string     `db:"topic"`
	Payload     []byte     `db:"payload"`
	CreatedAt   time.Time  `db:"created_at"`
	PublishedAt *time.Time `db:"published_at"`
}
