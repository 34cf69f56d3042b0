package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orders-invoices/services/invoices/internal/repo"
	"orders-invoices/shared/pkg/models"
)

type InvoiceReader interface {
	GetByOrderID(ctx context.Context, orderID string) (models.Invoice, error)
}

type GetInvoiceHandler struct {
	Invoices InvoiceReader
	Log      zerolog.Logger
}

func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *GetInvoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if _, err := uuid.Parse(orderID); err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	inv, err := h.Invoices.GetByOrderID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Str("order_id", orderID).Msg("get invoice failed")
		http.Error(w, "failed to load invoice", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(inv)
}
