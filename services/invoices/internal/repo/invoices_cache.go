package repo

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"orders-invoices/shared/pkg/cache"
	"orders-invoices/shared/pkg/models"
)

type Store interface {
	ExistsByOrderID(ctx context.Context, orderID string) (bool, error)
	Create(ctx context.Context, inv models.Invoice) (models.Invoice, error)
	GetByOrderID(ctx context.Context, orderID string) (models.Invoice, error)
}

// InvoicesCached keeps created invoices in Redis in front of Postgres.
// Redis is only a shortcut: any Redis error falls through to Postgres and the
// unique constraint there stays the source of truth.
type InvoicesCached struct {
	PG    Store
	Redis *cache.Redis
	TTL   time.Duration
	Log   zerolog.Logger
}

func invoiceKey(orderID string) string { return "invoice:order:" + orderID }

func (r *InvoicesCached) ExistsByOrderID(ctx context.Context, orderID string) (bool, error) {
	ok, err := r.Redis.Exists(ctx, invoiceKey(orderID))
	if err == nil && ok {
		return true, nil
	}
	if err != nil {
		r.Log.Debug().Err(err).Str("order_id", orderID).Msg("redis unavailable, using postgres")
	}
	return r.PG.ExistsByOrderID(ctx, orderID)
}

func (r *InvoicesCached) Create(ctx context.Context, inv models.Invoice) (models.Invoice, error) {
	created, err := r.PG.Create(ctx, inv)
	if err != nil {
		return created, err
	}
	r.remember(ctx, created)
	return created, nil
}

func (r *InvoicesCached) GetByOrderID(ctx context.Context, orderID string) (models.Invoice, error) {
	var cached models.Invoice
	err := r.Redis.GetJSON(ctx, invoiceKey(orderID), &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		r.Log.Debug().Err(err).Str("order_id", orderID).Msg("redis read failed, using postgres")
	}

	inv, err := r.PG.GetByOrderID(ctx, orderID)
	if err != nil {
		return models.Invoice{}, err
	}
	r.remember(ctx, inv)
	return inv, nil
}

func (r *InvoicesCached) remember(ctx context.Context, inv models.Invoice) {
	if err := r.Redis.SetJSON(ctx, invoiceKey(inv.OrderID), inv, r.TTL); err != nil {
		r.Log.Debug().Err(err).Str("order_id", inv.OrderID).Msg("redis write failed")
	}
}
