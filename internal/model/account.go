package model

import "time"

// Account holds a tenant's personal credit balance. Privileged accounts bill
// against the shared pool only.
type Account struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	APIKey       string    `db:"api_key"`
	Status       string    `db:"status"` // active|suspended
	Privileged   bool      `db:"privileged"`
	Balance      int64     `db:"balance"`
	RateLimitRPS *int      `db:"rate_limit_rps"` // nullable
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
