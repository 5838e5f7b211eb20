package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/metrics"
	"github.com/spooky-styles/orders-service/internal/models"
	"github.com/spooky-styles/orders-service/internal/repository"
)

// OrderStore is the order storage surface the engine depends on.
type OrderStore interface {
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error)
	Materialize(ctx context.Context, fn func(tx repository.MaterializeTx) error) error
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
}

// CartStore reads and clears cart snapshots.
type CartStore interface {
	ReadCartSnapshot(ctx context.Context, owner models.OwnerIdentity) (*models.CartSnapshot, error)
	ClearCart(ctx context.Context, owner models.OwnerIdentity) error
}

// EventPublisher emits order lifecycle events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error
	PublishOrderCancelled(ctx context.Context, order *models.Order, reason string) error
	PublishPaymentOrphaned(ctx context.Context, paymentIntentID string, owner models.OwnerIdentity, reason string) error
}

// NotificationSender delivers order confirmations. Best-effort.
type NotificationSender interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
}

// ReconcileResult is the outcome of one reconciliation attempt.
type ReconcileResult struct {
	Order *models.Order
	// Duplicate is true when the order already existed for the payment
	// intent and this attempt was a no-op.
	Duplicate bool
}

// ReconciliationEngine turns a completed payment into a durable order with
// decremented inventory, exactly once per payment intent. Duplicate and
// concurrent deliveries of the same payment signal resolve to the
// already-materialized order.
type ReconciliationEngine struct {
	orders        OrderStore
	carts         CartStore
	pricer        *Pricer
	events        EventPublisher
	notifications NotificationSender
	logger        *zap.Logger
}

// NewReconciliationEngine creates a reconciliation engine. events and
// notifications may be nil when those side channels are not wired.
func NewReconciliationEngine(
	orders OrderStore,
	carts CartStore,
	pricer *Pricer,
	events EventPublisher,
	notifications NotificationSender,
	logger *zap.Logger,
) *ReconciliationEngine {
	return &ReconciliationEngine{
		orders:        orders,
		carts:         carts,
		pricer:        pricer,
		events:        events,
		notifications: notifications,
		logger:        logger,
	}
}

// Reconcile materializes the order for a succeeded payment intent.
//
// The uniqueness guard is the insert itself: the orders table holds a
// unique constraint on the payment intent id, and a conflicting insert
// falls back to the already-materialized outcome. The lookup up front is
// only a fast path for redeliveries.
func (e *ReconciliationEngine) Reconcile(ctx context.Context, paymentIntentID string, owner models.OwnerIdentity) (*ReconcileResult, error) {
	start := time.Now()

	existing, err := e.orders.GetByPaymentIntentID(ctx, paymentIntentID)
	if err == nil {
		e.logger.Info("payment already materialized",
			zap.String("payment_intent_id", paymentIntentID),
			zap.String("order_id", existing.ID),
		)
		metrics.DuplicateDeliveries.Inc()
		return &ReconcileResult{Order: existing, Duplicate: true}, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Retryable(err)
	}

	// Snapshot read happens-before the write transaction so no catalog
	// lock is held while assembling the order.
	snapshot, err := e.carts.ReadCartSnapshot(ctx, owner)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyCart) {
			return nil, e.orphaned(ctx, paymentIntentID, owner, nil, err)
		}
		return nil, apperrors.Retryable(err)
	}

	order := e.buildOrder(paymentIntentID, owner, snapshot)

	err = e.orders.Materialize(ctx, func(tx repository.MaterializeTx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for i := range order.Items {
			item := &order.Items[i]
			newStock, ok, err := tx.TryDecrement(ctx, item.ProductID, item.Quantity)
			if errors.Is(err, apperrors.ErrNotFound) {
				return &apperrors.InsufficientStockError{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Available: 0,
				}
			}
			if err != nil {
				return err
			}
			if !ok {
				return &apperrors.InsufficientStockError{
					ProductID: item.ProductID,
					Requested: item.Quantity,
					Available: newStock,
				}
			}
			if err := tx.InsertOrderItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return e.handleMaterializeFailure(ctx, paymentIntentID, owner, snapshot, err)
	}

	metrics.OrdersCreated.Inc()
	metrics.MaterializeDuration.Observe(time.Since(start).Seconds())

	e.logger.Info("order materialized",
		zap.String("order_id", order.ID),
		zap.String("payment_intent_id", paymentIntentID),
		zap.Int64("total", order.Total.Amount),
		zap.Int("items", len(order.Items)),
	)

	e.promote(ctx, order)
	e.clearCart(ctx, owner, order.ID)
	e.announce(ctx, order)

	return &ReconcileResult{Order: order}, nil
}

func (e *ReconciliationEngine) buildOrder(paymentIntentID string, owner models.OwnerIdentity, snapshot *models.CartSnapshot) *models.Order {
	now := time.Now()
	order := &models.Order{
		ID:              "ord_" + uuid.NewString(),
		Total:           e.pricer.Total(snapshot.Subtotal(), owner),
		Status:          models.OrderStatusPending,
		PaymentIntentID: paymentIntentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if owner.IsGuest() {
		if owner.Contact != nil {
			order.GuestEmail = owner.Contact.Email
			order.GuestName = owner.Contact.Name
			order.GuestAddress = owner.Contact.Address
		}
	} else {
		userID := owner.UserID
		order.UserID = &userID
	}

	order.Items = make([]models.OrderItem, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ID:             "oit_" + uuid.NewString(),
			OrderID:        order.ID,
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			Customizations: line.Customizations,
			CreatedAt:      now,
		})
	}
	return order
}

// handleMaterializeFailure classifies a failed materialization. A unique
// conflict means a concurrent delivery won the race; everything
// non-transient is an orphaned payment.
func (e *ReconciliationEngine) handleMaterializeFailure(ctx context.Context, paymentIntentID string, owner models.OwnerIdentity, snapshot *models.CartSnapshot, err error) (*ReconcileResult, error) {
	if errors.Is(err, apperrors.ErrDuplicatePayment) {
		winner, lookupErr := e.orders.GetByPaymentIntentID(ctx, paymentIntentID)
		if lookupErr != nil {
			return nil, apperrors.Retryable(lookupErr)
		}
		e.logger.Info("lost materialization race, order already exists",
			zap.String("payment_intent_id", paymentIntentID),
			zap.String("order_id", winner.ID),
		)
		metrics.DuplicateDeliveries.Inc()
		return &ReconcileResult{Order: winner, Duplicate: true}, nil
	}

	var stockErr *apperrors.InsufficientStockError
	if errors.As(err, &stockErr) {
		metrics.ReconcileFailures.WithLabelValues("insufficient_stock").Inc()
		return nil, e.orphaned(ctx, paymentIntentID, owner, snapshot, err)
	}

	metrics.ReconcileFailures.WithLabelValues("store_error").Inc()
	return nil, apperrors.Retryable(err)
}

// orphaned records a payment that was captured externally but produced no
// order. Money moved with nothing to fulfill: log at error with everything
// a human needs to reconcile it by hand, and emit the event.
func (e *ReconciliationEngine) orphaned(ctx context.Context, paymentIntentID string, owner models.OwnerIdentity, snapshot *models.CartSnapshot, cause error) error {
	fields := []zap.Field{
		zap.String("payment_intent_id", paymentIntentID),
		zap.Bool("guest", owner.IsGuest()),
		zap.Error(cause),
	}
	if owner.IsGuest() {
		fields = append(fields, zap.String("guest_token", owner.GuestToken))
		if owner.Contact != nil {
			fields = append(fields, zap.String("guest_email", owner.Contact.Email))
		}
	} else {
		fields = append(fields, zap.Int64("user_id", owner.UserID))
	}
	if snapshot != nil {
		fields = append(fields, zap.Any("attempted_lines", snapshot.Lines))
	}
	e.logger.Error("orphaned payment: captured externally but no order materialized", fields...)

	metrics.OrphanedPayments.Inc()

	if e.events != nil {
		if pubErr := e.events.PublishPaymentOrphaned(ctx, paymentIntentID, owner, cause.Error()); pubErr != nil {
			e.logger.Error("failed to publish orphaned payment event",
				zap.String("payment_intent_id", paymentIntentID),
				zap.Error(pubErr),
			)
		}
	}

	return &apperrors.OrphanedPaymentError{PaymentIntentID: paymentIntentID, Reason: cause}
}

// promote moves the committed order from pending to processing. The order
// is already durable; a failure here leaves it pending and is not fatal.
func (e *ReconciliationEngine) promote(ctx context.Context, order *models.Order) {
	if err := e.orders.UpdateStatus(ctx, order.ID, models.OrderStatusProcessing); err != nil {
		e.logger.Error("failed to promote order to processing",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return
	}
	order.Status = models.OrderStatusProcessing
}

// clearCart empties the owner's cart after commit. Best-effort: a failure
// never unwinds the order.
func (e *ReconciliationEngine) clearCart(ctx context.Context, owner models.OwnerIdentity, orderID string) {
	if err := e.carts.ClearCart(ctx, owner); err != nil {
		e.logger.Warn("failed to clear cart after order creation",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

func (e *ReconciliationEngine) announce(ctx context.Context, order *models.Order) {
	if e.events != nil {
		if err := e.events.PublishOrderCreated(ctx, order); err != nil {
			e.logger.Error("failed to publish order created event",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}
	if e.notifications != nil {
		if err := e.notifications.SendOrderConfirmation(ctx, order); err != nil {
			e.logger.Warn("failed to send order confirmation",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}
}
