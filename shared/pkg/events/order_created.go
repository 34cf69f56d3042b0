package events

const TypeOrderCreated = "order.created"

type Customer struct {
	ID string `json:"id" validate:"required"`
}

type OrderCreatedPayload struct {
	OrderID  string   `json:"orderId" validate:"required,uuid"`
	Amount   *float64 `json:"amount" validate:"required"`
	Customer Customer `json:"customer"`
}

func NewOrderCreatedPayload(orderID string, amount float64, customerID string) OrderCreatedPayload {
	return OrderCreatedPayload{
		OrderID:  orderID,
		Amount:   &amount,
		Customer: Customer{ID: customerID},
	}
}

var OrderCreated = NewSchema[OrderCreatedPayload](TypeOrderCreated)
