package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orders-invoices/shared/pkg/metrics"
)

type Handlers struct {
	Health     http.HandlerFunc
	GetInvoice http.HandlerFunc
}

func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware("invoices"))
	r.Use(middleware.SetHeader("Access-Control-Allow-Origin", "*"))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/invoices/{orderId}", h.GetInvoice)
	return r
}
