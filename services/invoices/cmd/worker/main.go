package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orders-invoices/services/invoices/internal/dispatcher"
	httpx "orders-invoices/services/invoices/internal/http"
	"orders-invoices/services/invoices/internal/invoicing"
	"orders-invoices/services/invoices/internal/repo"
	"orders-invoices/shared/pkg/cache"
	"orders-invoices/shared/pkg/config"
	"orders-invoices/shared/pkg/events"
	"orders-invoices/shared/pkg/logger"
	"orders-invoices/shared/pkg/pg"
	"orders-invoices/shared/pkg/rabbit"
)

const (
	service = "invoices"
	queue   = "invoices.q"
	dlqKey  = "invoices.dlq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(service, cfg.Common.LogLevel)

	ctxDB, cancelDB := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDB()
	db, err := pg.Connect(ctxDB, log, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("pg connect failed")
	}
	defer db.Close()

	if cfg.Postgres.Migrate {
		if err := pg.Migrate(log, cfg.Postgres.DSN, repo.Migrations, "migrations", repo.MigrationsTable); err != nil {
			log.Fatal().Err(err).Msg("migrate failed")
		}
	}

	var store repo.Store = &repo.InvoicesPG{DB: db}
	if cfg.Redis.Addr != "" {
		rdb := cache.New(cfg.Redis.Addr)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(context.Background()); err != nil {
			log.Warn().Err(err).Msg("redis ping failed, continuing with postgres only lookups on miss")
		}
		store = &repo.InvoicesCached{PG: store, Redis: rdb, TTL: cfg.Redis.TTL, Log: log}
	}

	rc, err := rabbit.Connect(cfg.Rabbit.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit connect failed")
	}
	defer func() { _ = rc.Close() }()

	if err := rabbit.DeclareBase(rc.Ch); err != nil {
		log.Fatal().Err(err).Msg("declare base failed")
	}
	if err := rabbit.DeclareQueueWithDLQ(rc.Ch, rabbit.QueueSpec{
		Name:     queue,
		BindKeys: []string{events.TypeOrderCreated},
		DLQKey:   dlqKey,
	}); err != nil {
		log.Fatal().Err(err).Msg("declare invoices topology failed")
	}
	delays := rabbit.RetryDelays(cfg.Consumer.RetryBase, cfg.Consumer.RetryMax, cfg.Consumer.MaxAttempts)
	if err := rabbit.DeclareRetryTiers(rc.Ch, service, queue, delays); err != nil {
		log.Fatal().Err(err).Msg("declare retry tiers failed")
	}

	pubCh, err := rc.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("open publish channel failed")
	}
	retryPub, err := rabbit.NewConfirmPublisher(pubCh, rabbit.ExchangeRetry)
	if err != nil {
		log.Fatal().Err(err).Msg("confirm mode failed")
	}

	d := dispatcher.New(log, events.NewRegistry(events.OrderCreated), &rabbit.Retrier{
		Service:     service,
		MaxAttempts: int32(cfg.Consumer.MaxAttempts),
		RetryPub:    retryPub,
		DLQPub:      rabbit.NewPublisher(pubCh, rabbit.ExchangeDLX),
		DLQKey:      dlqKey,
	}, dispatcher.Config{
		Service:        service,
		Workers:        cfg.Consumer.Workers,
		HandlerTimeout: cfg.Consumer.HandlerTimeout,
	})
	if err := d.Register(events.TypeOrderCreated, &invoicing.Handler{Store: store, Log: log}); err != nil {
		log.Fatal().Err(err).Msg("register handler failed")
	}

	consumer := rabbit.NewConsumer(rc.Ch, service+"-dispatcher")
	deliveries, err := consumer.Consume(queue, cfg.Consumer.Prefetch)
	if err != nil {
		log.Fatal().Err(err).Msg("consume failed")
	}

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(appCtx, deliveries) }()

	get := &httpx.GetInvoiceHandler{Invoices: store, Log: log}
	srv := &http.Server{
		Addr:              cfg.Invoices.HTTPAddr,
		Handler:           httpx.NewRouter(&httpx.Handlers{Health: httpx.Health, GetInvoice: get.ServeHTTP}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http failed")
		}
	}()

	log.Info().Msg("invoices service started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	stopped := false
	select {
	case <-sig:
	case err := <-runErr:
		stopped = true
		if errors.Is(err, dispatcher.ErrDeliveriesClosed) {
			log.Error().Err(err).Msg("broker closed the consumer")
		}
	}
	log.Info().Msg("shutdown...")

	if err := consumer.Cancel(); err != nil {
		log.Warn().Err(err).Msg("consumer cancel failed")
	}
	cancel()

	// in-flight handlers settle before the broker and pool close
	drainTimeout := cfg.Consumer.HandlerTimeout + 5*time.Second
	if !stopped {
		select {
		case <-runErr:
		case <-time.After(drainTimeout):
			log.Warn().Dur("timeout", drainTimeout).Msg("dispatcher drain timed out")
		}
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
}
