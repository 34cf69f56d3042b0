package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orders-invoices/services/invoices/internal/repo"
	"orders-invoices/shared/pkg/events"
	"orders-invoices/shared/pkg/models"
)

type Store interface {
	ExistsByOrderID(ctx context.Context, orderID string) (bool, error)
	Create(ctx context.Context, inv models.Invoice) (models.Invoice, error)
}

// Handler creates at most one invoice per order for order.created events.
type Handler struct {
	Store Store
	Log   zerolog.Logger
}

func (h *Handler) Handle(ctx context.Context, env events.Envelope) error {
	p, err := events.OrderCreated.Decode(env.Payload)
	if err != nil {
		return err
	}
	log := h.Log.With().Str("event_id", env.EventID).Str("order_id", p.OrderID).Logger()

	exists, err := h.Store.ExistsByOrderID(ctx, p.OrderID)
	if err != nil {
		return events.Transient(fmt.Errorf("check invoice: %w", err))
	}
	if exists {
		log.Info().Msg("invoice already exists, skipping")
		return nil
	}

	inv, err := h.Store.Create(ctx, models.Invoice{
		ID:         uuid.NewString(),
		OrderID:    p.OrderID,
		CustomerID: p.Customer.ID,
		Amount:     *p.Amount,
		EventID:    env.EventID,
	})
	if errors.Is(err, repo.ErrInvoiceExists) {
		// a concurrent delivery won the insert
		log.Info().Msg("invoice created concurrently, skipping")
		return nil
	}
	if err != nil {
		return events.Transient(fmt.Errorf("create invoice: %w", err))
	}

	log.Info().Str("invoice_id", inv.ID).Float64("amount", inv.Amount).Msg("invoice created")
	return nil
}
