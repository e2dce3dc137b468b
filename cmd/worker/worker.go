package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkarimi/sms-platform/internal/config"
	"github.com/mkarimi/sms-platform/internal/db"
	"github.com/mkarimi/sms-platform/internal/kafka"
	"github.com/mkarimi/sms-platform/internal/logger"
	"github.com/mkarimi/sms-platform/internal/metrics"
	"github.com/mkarimi/sms-platform/internal/repository"
	"github.com/mkarimi/sms-platform/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the outbox relay (outbox table -> Kafka)",
	RunE:  runRelay,
}

func init() {
	workerCmd.AddCommand(relayCmd)
}

func NewWorkerCmd() *cobra.Command { return workerCmd }

func runRelay(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	producer := kafka.NewProducerFromConfig(kafka.Config{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		BatchTimeout: cfg.Kafka.BatchTimeout,
	})
	defer func() { _ = producer.Close() }()

	relay := worker.NewRelay(
		repository.NewOutboxRepository(dbx),
		producer,
		cfg.Kafka.RelayLimit,
		cfg.Kafka.RelayEvery,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("relay: topic=%s every=%s limit=%d", cfg.Kafka.Topic, relay.Every, relay.Limit)
		errCh <- relay.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("signal received: %s, stopping relay...", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("relay exited: %w", err)
		}
	}
	return nil
}
