package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/models"
)

// ProviderClient is the typed boundary around the external payment
// authority. It carries no business logic.
type ProviderClient interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*models.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error)
}

// PaymentService creates and confirms payment intents and drives the
// synchronous completion path.
type PaymentService struct {
	provider ProviderClient
	carts    CartStore
	pricer   *Pricer
	engine   *ReconciliationEngine
	logger   *zap.Logger
}

// NewPaymentService creates a payment service.
func NewPaymentService(
	provider ProviderClient,
	carts CartStore,
	pricer *Pricer,
	engine *ReconciliationEngine,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		provider: provider,
		carts:    carts,
		pricer:   pricer,
		engine:   engine,
		logger:   logger,
	}
}

// CreateIntent registers a pending payment with the provider, carrying the
// owner identity in metadata so the webhook path can reconstruct it.
//
// For authenticated users the amount is computed server-side from the live
// cart; the client-supplied amount is ignored. Guests supply the amount
// and full shipping contact.
func (s *PaymentService) CreateIntent(ctx context.Context, owner models.OwnerIdentity, guestAmountCents int64) (*models.PaymentIntent, error) {
	var amount int64

	if owner.IsGuest() {
		if !owner.Contact.Complete() {
			return nil, apperrors.NewValidationError("guestInfo", "guest checkout requires email, name and address")
		}
		amount = guestAmountCents
	} else {
		snapshot, err := s.carts.ReadCartSnapshot(ctx, owner)
		if err != nil {
			if errors.Is(err, apperrors.ErrEmptyCart) {
				return nil, apperrors.NewValidationError("cart", "cart is empty")
			}
			return nil, apperrors.Retryable(err)
		}
		amount = s.pricer.Total(snapshot.Subtotal(), owner).Amount
	}

	if amount < s.pricer.MinimumCharge() {
		return nil, apperrors.NewValidationError("amount", "amount is below the provider minimum charge")
	}

	intent, err := s.provider.CreateIntent(ctx, amount, s.pricer.Currency(), owner.Metadata())
	if err != nil {
		return nil, apperrors.Retryable(err)
	}

	s.logger.Info("payment intent created",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", amount),
		zap.Bool("guest", owner.IsGuest()),
	)
	return intent, nil
}

// ConfirmIntent returns the provider's current view of an intent.
func (s *PaymentService) ConfirmIntent(ctx context.Context, paymentIntentID string) (*models.PaymentIntent, error) {
	intent, err := s.provider.GetIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, apperrors.Retryable(err)
	}
	return intent, nil
}

// CompletePayment is the synchronous alternative to webhook delivery: it
// verifies the intent succeeded with the provider and invokes the
// reconciliation engine. Idempotent identically to the webhook path.
func (s *PaymentService) CompletePayment(ctx context.Context, paymentIntentID string) (*ReconcileResult, error) {
	intent, err := s.provider.GetIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, apperrors.Retryable(err)
	}

	if intent.Status != models.PaymentIntentSucceeded {
		return nil, apperrors.NewValidationError("paymentIntentId", "payment has not succeeded")
	}

	owner, err := models.OwnerFromMetadata(intent.Metadata)
	if err != nil {
		return nil, apperrors.NewValidationError("paymentIntentId", err.Error())
	}

	return s.engine.Reconcile(ctx, intent.ID, owner)
}
