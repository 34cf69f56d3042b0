package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"orders-invoices/services/orders/internal/service"
	"orders-invoices/shared/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type OrderCreator interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (models.Order, error)
}

type CreateOrderHandler struct {
	Orders OrderCreator
	Log    zerolog.Logger
}

// amount accepts any JSON number (exponent form included) or a numeric string.
type createOrderReq struct {
	Amount     json.Number `json:"amount" validate:"required"`
	CustomerID string      `json:"customerId" validate:"omitempty,max=64"`
}

func (h *CreateOrderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	amount, err := req.Amount.Float64()
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Orders.CreateOrder(ctx, service.CreateOrderInput{Amount: amount, CustomerID: req.CustomerID})
	if err != nil {
		h.Log.Error().Err(err).Msg("create order failed")
		http.Error(w, "failed to create order", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/orders/"+order.ID)
	w.WriteHeader(http.StatusCreated)
}
