package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpx "orders-invoices/services/orders/internal/http"
	"orders-invoices/services/orders/internal/http/handlers"
	"orders-invoices/services/orders/internal/repo"
	"orders-invoices/services/orders/internal/service"
	"orders-invoices/shared/pkg/config"
	"orders-invoices/shared/pkg/events"
	"orders-invoices/shared/pkg/logger"
	"orders-invoices/shared/pkg/pg"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New("orders", cfg.Common.LogLevel)

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

	orders := &service.Orders{
		Store:             &repo.OrdersPG{DB: db, Outbox: &repo.OutboxPG{}},
		Registry:          events.NewRegistry(events.OrderCreated),
		DefaultCustomerID: cfg.Orders.DefaultCustomerID,
		Log:               log,
	}

	create := &handlers.CreateOrderHandler{Orders: orders, Log: log}

	router := httpx.NewRouter(&httpx.Handlers{
		Health:      handlers.Health,
		CreateOrder: create.ServeHTTP,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutdown...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
}
