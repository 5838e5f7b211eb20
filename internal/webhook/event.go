package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/spooky-styles/orders-service/internal/models"
)

// Event types this service acts on. Anything else is acknowledged and
// ignored so the provider never enters a retry storm over event types we
// do not consume.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

// Event is the provider's webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object intentObject `json:"object"`
	} `json:"data"`
}

type intentObject struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// ParseEvent decodes a verified payload.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if event.Type == "" || event.Data.Object.ID == "" {
		return nil, fmt.Errorf("webhook payload missing event type or intent id")
	}
	return &event, nil
}

// Intent exposes the event's payment intent.
func (e *Event) Intent() models.PaymentIntent {
	return models.PaymentIntent{
		ID:       e.Data.Object.ID,
		Amount:   e.Data.Object.Amount,
		Currency: e.Data.Object.Currency,
		Status:   models.PaymentIntentStatus(e.Data.Object.Status),
		Metadata: e.Data.Object.Metadata,
	}
}
