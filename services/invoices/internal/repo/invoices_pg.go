package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"orders-invoices/shared/pkg/models"
)

const uniqueViolation = "23505"

var (
	// ErrInvoiceExists is returned when the unique constraint on order_id rejects an insert.
	ErrInvoiceExists = errors.New("invoice already exists for order")
	ErrNotFound      = errors.New("invoice not found")
)

type InvoicesPG struct{ DB *pgxpool.Pool }

func (r *InvoicesPG) ExistsByOrderID(ctx context.Context, orderID string) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `select exists(select 1 from invoices where order_id = $1::uuid)`, orderID).Scan(&ok)
	return ok, err
}

// Create inserts inv. Concurrent inserts for one order race on the unique
// constraint; the loser gets ErrInvoiceExists.
func (r *InvoicesPG) Create(ctx context.Context, inv models.Invoice) (models.Invoice, error) {
	err := r.DB.QueryRow(ctx, `
		insert into invoices(id, order_id, customer_id, amount, event_id)
		values ($1::uuid, $2::uuid, $3, $4, $5)
		returning created_at
	`, inv.ID, inv.OrderID, inv.CustomerID, inv.Amount, inv.EventID).Scan(&inv.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.Invoice{}, ErrInvoiceExists
		}
		return models.Invoice{}, err
	}
	return inv, nil
}

func (r *InvoicesPG) GetByOrderID(ctx context.Context, orderID string) (models.Invoice, error) {
	var inv models.Invoice
	err := r.DB.QueryRow(ctx, `
		select id::text, order_id::text, customer_id, amount, event_id, created_at
		from invoices
		where order_id = $1::uuid
	`, orderID).Scan(&inv.ID, &inv.OrderID, &inv.CustomerID, &inv.Amount, &inv.EventID, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Invoice{}, ErrNotFound
	}
	return inv, err
}
