package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mkarimi/sms-platform/internal/config"
	"github.com/mkarimi/sms-platform/internal/db"
	"github.com/mkarimi/sms-platform/internal/model"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo accounts and pooled credit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo accounts...")

		if err := seedAccounts(sqlDB); err != nil {
			return err
		}
		if err := seedPool(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

// seedAccounts inserts deterministic demo accounts (idempotent).
func seedAccounts(dbx *sqlx.DB) error {
	accounts := []model.Account{
		{
			Name:         "Acme Corp",
			APIKey:       "11111111111111111111111111111111",
			Status:       "active",
			Balance:      10000,
			RateLimitRPS: intptr(20),
		},
		{
			Name:         "Foobar LLC",
			APIKey:       "22222222222222222222222222222222",
			Status:       "active",
			Balance:      5000,
			RateLimitRPS: intptr(50),
		},
		{
			Name:         "Beta Testers",
			APIKey:       "33333333333333333333333333333333",
			Status:       "active",
			Balance:      100,
			RateLimitRPS: intptr(5),
		},
		{
			Name:         "Suspended Inc",
			APIKey:       "44444444444444444444444444444444",
			Status:       "suspended",
			Balance:      0,
			RateLimitRPS: nil,
		},
		{
			Name:         "Platform Ops",
			APIKey:       "55555555555555555555555555555555",
			Status:       "active",
			Privileged:   true,
			Balance:      0,
			RateLimitRPS: intptr(100),
		},
	}

	// idempotent upsert based on api_key (UNIQUE)
	const q = `
INSERT INTO accounts
    (name, api_key, status, privileged, balance, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name        = VALUES(name),
    status      = VALUES(status),
    privileged  = VALUES(privileged),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at  = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, a := range accounts {
		if _, err := tx.Exec(q, a.Name, a.APIKey, a.Status, a.Privileged, a.Balance, a.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert account %q: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit accounts: %w", err)
	}
	return nil
}

// seedPool creates the single pooled-credit row if missing. Existing balance
// is left alone so re-seeding never resets live credit.
func seedPool(dbx *sqlx.DB) error {
	const q = `
INSERT INTO credit_pool (id, balance, updated_at)
VALUES (1, 100000, NOW())
ON DUPLICATE KEY UPDATE id = id
`
	if _, err := dbx.Exec(q); err != nil {
		return fmt.Errorf("seed credit pool: %w", err)
	}
	return nil
}

func intptr(i int) *int { return &i }
