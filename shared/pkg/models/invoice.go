package models

import "time"

type Invoice struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	Amount     float64   `json:"amount"`
	EventID    string    `json:"eventId"`
	CreatedAt  time.Time `json:"createdAt"`
}
