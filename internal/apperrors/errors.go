// Package apperrors defines the error taxonomy shared by the
// reconciliation engine, the stores and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyCart indicates the owner's cart has no lines. Raised before
	// any transaction is opened.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrDuplicatePayment indicates an order already exists for the
	// payment intent. Not a failure: callers resolve it to the
	// already-materialized success path.
	ErrDuplicatePayment = errors.New("order already exists for payment intent")

	// ErrSignatureVerification indicates a webhook payload failed
	// authenticity checks and was rejected before any business logic ran.
	ErrSignatureVerification = errors.New("webhook signature verification failed")

	// ErrInvalidTransition indicates a disallowed order status move.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// ValidationError reports a client-supplied value that fails validation.
// Surfaces as a 4xx with a human-readable reason.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError aborts an order materialization when a product
// cannot cover the requested quantity. The whole transaction rolls back.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// OrphanedPaymentError marks a payment that was captured externally but for
// which no order could be materialized. Real money with no fulfillment:
// it must be surfaced for manual reconciliation, never dropped.
type OrphanedPaymentError struct {
	PaymentIntentID string
	Reason          error
}

func (e *OrphanedPaymentError) Error() string {
	return fmt.Sprintf("orphaned payment %s: %v", e.PaymentIntentID, e.Reason)
}

func (e *OrphanedPaymentError) Unwrap() error {
	return e.Reason
}

// RetryableError wraps a transient infrastructure failure. The webhook
// ingress surfaces these as 5xx so the provider's redelivery drives the
// retry; everything else is acknowledged and handled out-of-band.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as transient. Returns nil for nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is marked transient.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
