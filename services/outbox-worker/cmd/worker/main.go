package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpx "orders-invoices/services/outbox-worker/internal/http"
	"orders-invoices/services/outbox-worker/internal/outbox"
	"orders-invoices/shared/pkg/config"
	"orders-invoices/shared/pkg/eventbus"
	"orders-invoices/shared/pkg/logger"
	"orders-invoices/shared/pkg/pg"
	"orders-invoices/shared/pkg/rabbit"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New("outbox-worker", cfg.Common.LogLevel)

	ctxDB, cancelDB := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDB()
	db, err := pg.Connect(ctxDB, log, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("pg connect failed")
	}
	defer db.Close()

	rc, err := rabbit.Connect(cfg.Rabbit.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit connect failed")
	}
	defer func() { _ = rc.Close() }()

	if err := rabbit.DeclareBase(rc.Ch); err != nil {
		log.Fatal().Err(err).Msg("declare base failed")
	}

	eventsPub, err := rabbit.NewConfirmPublisher(rc.Ch, rabbit.ExchangeEvents)
	if err != nil {
		log.Fatal().Err(err).Msg("confirm mode failed")
	}

	store := &outbox.PGStore{DB: db}
	runner := &outbox.Runner{
		Log:   log,
		Store: store,
		Publisher: eventbus.NewPublisher(log, eventsPub, eventbus.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: cfg.Breaker.OpenTimeout,
		}),
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		BackoffBase:  cfg.Outbox.BackoffBase,
		BackoffMax:   cfg.Outbox.BackoffMax,
		AlertAfter:   cfg.Outbox.AlertAfter,
		TickBudget:   cfg.Outbox.TickBudget,
	}

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		runner.Run(appCtx)
	}()

	httpSrv := &http.Server{
		Addr:              cfg.Outbox.HTTPAddr,
		Handler:           (&httpx.Server{Outbox: store}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("http started")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http failed")
		}
	}()

	log.Info().Msg("outbox-worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	connClosed := rc.Conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := rc.Ch.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case <-sig:
	case amqpErr := <-connClosed:
		if amqpErr != nil {
			log.Error().Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).Msg("rabbit connection closed")
		}
	case amqpErr := <-chClosed:
		// a dead confirm channel fails every publish; exit so the process is restarted
		if amqpErr != nil {
			log.Error().Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).Msg("rabbit publish channel closed")
		}
	}

	log.Info().Msg("shutdown...")
	cancel()
	select {
	case <-runDone:
	case <-time.After(cfg.Outbox.TickBudget + 5*time.Second):
		log.Warn().Msg("outbox runner did not stop in time")
	}
	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = httpSrv.Shutdown(shCtx)
}
