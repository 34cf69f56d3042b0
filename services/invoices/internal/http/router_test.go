package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"orders-invoices/services/invoices/internal/repo"
	"orders-invoices/shared/pkg/models"
)

const knownOrder = "0b7f4d1e-3c61-4f4f-9f1e-2f0a8c1b2d3e"

type invoices struct{ err error }

func (i invoices) GetByOrderID(_ context.Context, orderID string) (models.Invoice, error) {
	if i.err != nil {
		return models.Invoice{}, i.err
	}
	if orderID != knownOrder {
		return models.Invoice{}, repo.ErrNotFound
	}
	return models.Invoice{ID: "inv-1", OrderID: orderID, Amount: 150, CustomerID: "c1"}, nil
}

func serve(reader InvoiceReader, path string) *httptest.ResponseRecorder {
	get := &GetInvoiceHandler{Invoices: reader, Log: zerolog.Nop()}
	rec := httptest.NewRecorder()
	NewRouter(&Handlers{Health: Health, GetInvoice: get.ServeHTTP}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(invoices{}, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetInvoice(t *testing.T) {
	tests := []struct {
		name   string
		reader InvoiceReader
		path   string
		status int
	}{
		{name: "found", reader: invoices{}, path: "/invoices/" + knownOrder, status: http.StatusOK},
		{name: "missing", reader: invoices{}, path: "/invoices/9a1c0d2e-1111-4222-8333-444455556666", status: http.StatusNotFound},
		{name: "bad id", reader: invoices{}, path: "/invoices/42", status: http.StatusBadRequest},
		{name: "store error", reader: invoices{err: errors.New("boom")}, path: "/invoices/" + knownOrder, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.reader, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"id":"inv-1","orderId":"`+knownOrder+`","customerId":"c1","amount":150,"eventId":"","createdAt":"0001-01-01T00:00:00Z"}`, rec.Body.String())
			}
		})
	}
}
