package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNew_BuildsValidEnvelope(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	reg := NewRegistry(OrderCreated)
	reg.now = func() time.Time { return fixed }

	orderID := uuid.NewString()
	env, err := reg.New(TypeOrderCreated, NewOrderCreatedPayload(orderID, 150, "5eb70ee8-f92c-4d5e-9848-f889b7ca2152"))
	require.NoError(t, err)

	assert.Equal(t, TypeOrderCreated, env.EventType)
	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err)
	assert.True(t, env.OccurredAt.Equal(fixed))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.JSONEq(t, `{"orderId":"`+orderID+`","amount":150,"customer":{"id":"5eb70ee8-f92c-4d5e-9848-f889b7ca2152"}}`, string(env.Payload))
}

func TestRegistryNew_FreshEventIDPerCall(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(OrderCreated)
	p := NewOrderCreatedPayload(uuid.NewString(), 1, "c1")

	a, err := reg.New(TypeOrderCreated, p)
	require.NoError(t, err)
	b, err := reg.New(TypeOrderCreated, p)
	require.NoError(t, err)

	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestRegistryNew_Rejects(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(OrderCreated)

	_, err := reg.New("order.shipped", map[string]string{"x": "y"})
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = reg.New(TypeOrderCreated, OrderCreatedPayload{OrderID: "not-a-uuid"})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestRegistryRegister_Duplicate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(OrderCreated))
	assert.Error(t, reg.Register(OrderCreated))

	s, ok := reg.Lookup(TypeOrderCreated)
	require.True(t, ok)
	assert.Equal(t, TypeOrderCreated, s.EventType())
}

func TestOrderCreatedDecode(t *testing.T) {
	t.Parallel()

	orderID := uuid.NewString()

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid", payload: `{"orderId":"` + orderID + `","amount":150,"customer":{"id":"c1"}}`},
		{name: "zero amount", payload: `{"orderId":"` + orderID + `","amount":0,"customer":{"id":"c1"}}`},
		{name: "extra fields tolerated", payload: `{"orderId":"` + orderID + `","amount":1,"customer":{"id":"c1","name":"n"},"currency":"EUR"}`},
		{name: "missing amount", payload: `{"orderId":"` + orderID + `","customer":{"id":"c1"}}`, wantErr: true},
		{name: "amount as string", payload: `{"orderId":"` + orderID + `","amount":"150","customer":{"id":"c1"}}`, wantErr: true},
		{name: "missing customer", payload: `{"orderId":"` + orderID + `","amount":1}`, wantErr: true},
		{name: "bad order id", payload: `{"orderId":"42","amount":1,"customer":{"id":"c1"}}`, wantErr: true},
		{name: "not an object", payload: `[1,2,3]`, wantErr: true},
		{name: "empty", payload: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := OrderCreated.Decode(json.RawMessage(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSchemaMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, orderID, p.OrderID)
			assert.Equal(t, "c1", p.Customer.ID)
		})
	}
}

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"eventType":"order.created","eventId":"e1","occurredAt":"2026-01-01T00:00:00Z","payload":{"a":1}}`},
		{name: "bad json", body: `{"eventType":`, wantErr: true},
		{name: "missing type", body: `{"eventId":"e1","payload":{}}`, wantErr: true},
		{name: "missing id", body: `{"eventType":"order.created","payload":{}}`, wantErr: true},
		{name: "null payload", body: `{"eventType":"order.created","eventId":"e1","payload":null}`, wantErr: true},
		{name: "bad timestamp", body: `{"eventType":"order.created","eventId":"e1","occurredAt":"yesterday","payload":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, err := Decode([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSchemaMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "order.created", env.EventType)
			assert.Equal(t, "e1", env.EventID)
		})
	}
}

func TestEnvelopeEncode_WireFields(t *testing.T) {
	t.Parallel()

	env := Envelope{
		EventType:  TypeOrderCreated,
		EventID:    "e1",
		OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload:    json.RawMessage(`{"orderId":"o"}`),
	}
	b, err := env.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"eventType":"order.created","eventId":"e1","occurredAt":"2026-01-01T00:00:00Z","payload":{"orderId":"o"}}`, string(b))

	back, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, back.EventID)
	assert.True(t, env.OccurredAt.Equal(back.OccurredAt))
}

func TestIsRetriable(t *testing.T) {
	t.Parallel()

	cause := errors.New("db down")

	assert.False(t, IsRetriable(nil))
	assert.True(t, IsRetriable(cause))
	assert.True(t, IsRetriable(Transient(cause)))
	assert.False(t, IsRetriable(Permanent(cause)))
	assert.False(t, IsRetriable(mismatch("x")))
	assert.ErrorIs(t, Transient(cause), cause)
	assert.Nil(t, Permanent(nil))
}
