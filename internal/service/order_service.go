package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/models"
	"github.com/spooky-styles/orders-service/internal/repository"
)

// OrderReader is the read/update surface the order service needs.
type OrderReader interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
}

// OrderService serves order reads and explicit status transitions.
type OrderService struct {
	orders OrderReader
	cache  repository.OrderCache
	events EventPublisher
	logger *zap.Logger
}

// NewOrderService creates an order service. cache and events may be nil.
func NewOrderService(orders OrderReader, cache repository.OrderCache, events EventPublisher, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		cache:  cache,
		events: events,
		logger: logger,
	}
}

// GetOrder retrieves an order, cache first.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, order); err != nil {
			s.logger.Warn("failed to cache order", zap.String("order_id", id), zap.Error(err))
		}
	}
	return order, nil
}

// ListUserOrders retrieves a user's orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

// TransitionStatus moves an order to the next lifecycle status, rejecting
// moves the status machine does not allow.
func (s *OrderService) TransitionStatus(ctx context.Context, id string, next models.OrderStatus) (*models.Order, error) {
	if !next.IsValid() {
		return nil, apperrors.NewValidationError("status", "unknown order status")
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if order.Status == next {
		return order, nil
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, apperrors.ErrInvalidTransition
	}

	if err := s.orders.UpdateStatus(ctx, id, next); err != nil {
		return nil, err
	}

	previous := order.Status
	order.Status = next
	s.invalidate(ctx, id)

	if s.events != nil {
		if err := s.events.PublishOrderStatusChanged(ctx, order, previous); err != nil {
			s.logger.Error("failed to publish status change event",
				zap.String("order_id", id),
				zap.Error(err),
			)
		}
	}
	return order, nil
}

// CancelByPaymentIntent cancels the order tied to a failed or canceled
// payment. Idempotent: no order, or an order already cancelled, is a
// no-op. Orders past processing are left alone and flagged for review.
func (s *OrderService) CancelByPaymentIntent(ctx context.Context, paymentIntentID string, reason string) error {
	order, err := s.orders.GetByPaymentIntentID(ctx, paymentIntentID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Retryable(err)
	}

	if order.Status == models.OrderStatusCancelled {
		return nil
	}
	if !order.Status.CanTransitionTo(models.OrderStatusCancelled) {
		s.logger.Warn("payment failed for an order past cancellation",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.String("payment_intent_id", paymentIntentID),
		)
		return nil
	}

	if err := s.orders.UpdateStatus(ctx, order.ID, models.OrderStatusCancelled); err != nil {
		return apperrors.Retryable(err)
	}

	previous := order.Status
	order.Status = models.OrderStatusCancelled
	s.invalidate(ctx, order.ID)

	s.logger.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("previous_status", string(previous)),
		zap.String("reason", reason),
	)

	if s.events != nil {
		if err := s.events.PublishOrderCancelled(ctx, order, reason); err != nil {
			s.logger.Error("failed to publish order cancelled event",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *OrderService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate order cache", zap.String("order_id", id), zap.Error(err))
	}
}
