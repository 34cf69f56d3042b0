package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orders-invoices/shared/pkg/events"
	"orders-invoices/shared/pkg/models"
)

type OrdersPG struct {
	DB     *pgxpool.Pool
	Outbox *OutboxPG
}

// CreateWithEvent inserts the order row and its outbox entry in one
// transaction: both commit or neither does.
func (r *OrdersPG) CreateWithEvent(ctx context.Context, o models.Order, env events.Envelope) error {
	return pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			insert into orders(id, customer_id, amount)
			values ($1::uuid, $2, $3)
		`, o.ID, o.CustomerID, o.Amount); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := r.Outbox.Enqueue(ctx, tx, o.ID, env); err != nil {
			return fmt.Errorf("enqueue outbox: %w", err)
		}
		return nil
	})
}

func (r *OrdersPG) Get(ctx context.Context, id string) (models.Order, error) {
	var o models.Order
	err := r.DB.QueryRow(ctx, `select id::text, customer_id, amount from orders where id = $1::uuid`, id).
		Scan(&o.ID, &o.CustomerID, &o.Amount)
	return o, err
}
