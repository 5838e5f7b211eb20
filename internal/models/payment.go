package models

// PaymentIntentStatus mirrors the payment provider's intent lifecycle.
type PaymentIntentStatus string

const (
	PaymentIntentPending   PaymentIntentStatus = "pending"
	PaymentIntentSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentFailed    PaymentIntentStatus = "failed"
	PaymentIntentCanceled  PaymentIntentStatus = "canceled"
)

// PaymentIntent is the provider's record of a payment. The provider owns
// it; this service only creates it and reads it back.
type PaymentIntent struct {
	ID           string              `json:"id"`
	Amount       int64               `json:"amount"`
	Currency     string              `json:"currency"`
	Status       PaymentIntentStatus `json:"status"`
	ClientSecret string              `json:"client_secret,omitempty"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
}
