package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkarimi/sms-platform/internal/config"
	"github.com/mkarimi/sms-platform/internal/db"
	"github.com/mkarimi/sms-platform/internal/gateway"
	"github.com/mkarimi/sms-platform/internal/logger"
	"github.com/mkarimi/sms-platform/internal/metrics"
	"github.com/mkarimi/sms-platform/internal/poll"
	"github.com/mkarimi/sms-platform/internal/reconcile"
	"github.com/mkarimi/sms-platform/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// schedCmd runs the periodic passes: refund reconciliation after the grace
// window and the carrier status poll. One instance per deployment; both
// passes are idempotent so an overlapping manual trigger is harmless.
var schedCmd = &cobra.Command{
	Use:   "sched",
	Short: "Run cron scheduler (refund reconciliation + status polling)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		metrics.MustRegister(prometheus.DefaultRegisterer)

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		accountsRepo := repository.NewAccountsRepository(mysqlDB)
		poolRepo := repository.NewPoolRepository(mysqlDB)
		journalRepo := repository.NewJournalRepository(mysqlDB)
		messagesRepo := repository.NewMessagesRepository(mysqlDB)
		refundsRepo := repository.NewRefundsRepository(mysqlDB)

		gw := gateway.NewHTTPClient(gateway.HTTPClientOpts{
			BaseURL:       cfg.Gateway.BaseURL,
			SendPath:      cfg.Gateway.SendPath,
			StatusPath:    cfg.Gateway.StatusPath,
			APIKey:        cfg.Gateway.APIKey,
			TimeoutMs:     cfg.Gateway.TimeoutMs,
			RPS:           cfg.Gateway.RPS,
			FailThreshold: cfg.Gateway.Breaker.FailThreshold,
			OpenForMs:     cfg.Gateway.Breaker.OpenForMs,
		})

		reconciler := reconcile.New(reconcile.NewSQLStore(mysqlDB, refundsRepo, messagesRepo, poolRepo, journalRepo))
		if cfg.Refund.GraceWindow > 0 {
			reconciler.GraceWindow = cfg.Refund.GraceWindow
		}
		if cfg.Refund.BatchLimit > 0 {
			reconciler.BatchLimit = cfg.Refund.BatchLimit
		}

		poller := poll.New(poll.NewSQLStore(mysqlDB, messagesRepo, refundsRepo, accountsRepo), gw)
		if cfg.Poll.GraceWindow > 0 {
			poller.GraceWindow = cfg.Poll.GraceWindow
		}
		if cfg.Poll.BatchLimit > 0 {
			poller.BatchLimit = cfg.Poll.BatchLimit
		}
		if cfg.Poll.TerminalTimeout > 0 {
			poller.TerminalTimeout = cfg.Poll.TerminalTimeout
		}

		c := cron.New()
		if _, err := c.AddFunc(cfg.Sched.ReconcileSpec, func() {
			if _, err := reconciler.Run(context.Background()); err != nil {
				log.Printf("reconcile run failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule reconcile (%q): %w", cfg.Sched.ReconcileSpec, err)
		}
		if _, err := c.AddFunc(cfg.Sched.PollSpec, func() {
			if _, err := poller.Run(context.Background()); err != nil {
				log.Printf("poll run failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule poll (%q): %w", cfg.Sched.PollSpec, err)
		}

		c.Start()
		log.Printf("sched: reconcile=%q poll=%q", cfg.Sched.ReconcileSpec, cfg.Sched.PollSpec)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("signal received: %s, stopping scheduler...", sig)

		// wait for any in-flight pass before exiting
		<-c.Stop().Done()
		return nil
	},
}
