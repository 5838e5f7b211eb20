package models

import (
	"encoding/json"
	"time"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// validTransitions lists the allowed status moves. Delivered and cancelled
// are terminal.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// CanTransitionTo reports whether the status may move to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Money is an amount in minor currency units (cents).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney creates a Money value.
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Order is the durable result of a successful payment reconciliation.
// PaymentIntentID is the idempotency key: at most one order exists per
// payment intent, enforced by a unique constraint in storage.
type Order struct {
	ID              string          `json:"id"`
	UserID          *int64          `json:"user_id,omitempty"`
	GuestEmail      string          `json:"guest_email,omitempty"`
	GuestName       string          `json:"guest_name,omitempty"`
	GuestAddress    json.RawMessage `json:"guest_address,omitempty"`
	Total           Money           `json:"total"`
	Status          OrderStatus     `json:"status"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsGuest reports whether the order was placed through guest checkout.
func (o *Order) IsGuest() bool {
	return o.UserID == nil
}

// OrderItem is one cart line frozen at order-creation time. Immutable after
// creation: later catalog price changes never affect a placed order.
type OrderItem struct {
	ID             string            `json:"id"`
	OrderID        string            `json:"order_id"`
	ProductID      int64             `json:"product_id"`
	Quantity       int               `json:"quantity"`
	UnitPrice      Money             `json:"unit_price"`
	Customizations map[string]string `json:"customizations,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
