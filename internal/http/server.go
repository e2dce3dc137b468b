package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/mkarimi/sms-platform/internal/config"
	"github.com/mkarimi/sms-platform/internal/dispatch"
	"github.com/mkarimi/sms-platform/internal/gateway"
	"github.com/mkarimi/sms-platform/internal/http/middleware"
	"github.com/mkarimi/sms-platform/internal/ledger"
	"github.com/mkarimi/sms-platform/internal/metrics"
	"github.com/mkarimi/sms-platform/internal/poll"
	"github.com/mkarimi/sms-platform/internal/progress"
	"github.com/mkarimi/sms-platform/internal/reconcile"
	"github.com/mkarimi/sms-platform/internal/recorder"
	"github.com/mkarimi/sms-platform/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, tracker *progress.Tracker) *Server {
	// repos (MySQL)
	accountsRepo := repository.NewAccountsRepository(mysqlDB)
	poolRepo := repository.NewPoolRepository(mysqlDB)
	journalRepo := repository.NewJournalRepository(mysqlDB)
	messagesRepo := repository.NewMessagesRepository(mysqlDB)
	refundsRepo := repository.NewRefundsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	// repos (ClickHouse)
	reportsRepo := repository.NewReportsRepository(clickhouseDB)

	// carrier client
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

	// services
	credits := ledger.New(accountsRepo, poolRepo, journalRepo)
	rec := recorder.New(mysqlDB, messagesRepo, refundsRepo, outboxRepo, cfg.Kafka.Topic)
	orch := dispatch.NewOrchestrator(gw, credits, rec, tracker, dispatch.Config{
		BatchSize:   cfg.Dispatch.BatchSize,
		WindowSize:  cfg.Dispatch.WindowSize,
		WindowDelay: cfg.Dispatch.WindowDelay,
		BatchDelay:  cfg.Dispatch.BatchDelay,
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

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(accountsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:acct:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/dispatch", dispatchHandler(orch, credits))
	v1.GET("/jobs/:id", jobStatusHandler(tracker))
	v1.GET("/reports/messages", listMessagesHandler(reportsRepo))
	v1.POST("/wallet/topup", TopupHandler(mysqlDB, accountsRepo, journalRepo))

	// operator triggers; the sched command runs the same passes on cron
	internal := e.Group("/internal", tokenAuthMiddleware(cfg.Sched.AuthToken))
	internal.POST("/reconcile", reconcileHandler(reconciler))
	internal.POST("/poll", pollHandler(poller))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
