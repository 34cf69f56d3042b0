package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orders-invoices/shared/pkg/events"
	"orders-invoices/shared/pkg/models"
)

// Store persists an order together with its outbox entry atomically.
type Store interface {
	CreateWithEvent(ctx context.Context, o models.Order, env events.Envelope) error
}

type Orders struct {
	Store             Store
	Registry          *events.Registry
	DefaultCustomerID string
	Log               zerolog.Logger
}

type CreateOrderInput struct {
	Amount     float64
	CustomerID string
}

// CreateOrder assigns the order id up front, then writes the order and its
// order.created event in one unit of work. Publishing is left to the outbox
// relay, so a transport outage never fails the request.
func (s *Orders) CreateOrder(ctx context.Context, in CreateOrderInput) (models.Order, error) {
	order := models.Order{
		ID:         uuid.NewString(),
		CustomerID: in.CustomerID,
		Amount:     in.Amount,
	}
	if order.CustomerID == "" {
		order.CustomerID = s.DefaultCustomerID
	}

	env, err := s.Registry.New(events.TypeOrderCreated,
		events.NewOrderCreatedPayload(order.ID, order.Amount, order.CustomerID))
	if err != nil {
		return models.Order{}, fmt.Errorf("build %s: %w", events.TypeOrderCreated, err)
	}

	if err := s.Store.CreateWithEvent(ctx, order, env); err != nil {
		return models.Order{}, fmt.Errorf("%w: %w", events.ErrWriteFailed, err)
	}

	s.Log.Info().
		Str("order_id", order.ID).
		Str("event_id", env.EventID).
		Float64("amount", order.Amount).
		Msg("order created, event queued")
	return order, nil
}
