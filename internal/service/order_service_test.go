package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/models"
)

type fakeOrderReader struct {
	byID     map[string]*models.Order
	byIntent map[string]*models.Order
	updates  []models.OrderStatus
}

func newFakeOrderReader(orders ...*models.Order) *fakeOrderReader {
	r := &fakeOrderReader{
		byID:     make(map[string]*models.Order),
		byIntent: make(map[string]*models.Order),
	}
	for _, o := range orders {
		r.byID[o.ID] = o
		if o.PaymentIntentID != "" {
			r.byIntent[o.PaymentIntentID] = o
		}
	}
	return r
}

func (r *fakeOrderReader) GetByID(ctx context.Context, id string) (*models.Order, error) {
	order, ok := r.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return order, nil
}

func (r *fakeOrderReader) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	order, ok := r.byIntent[paymentIntentID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return order, nil
}

func (r *fakeOrderReader) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range r.byID {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeOrderReader) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	order, ok := r.byID[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	order.Status = status
	r.updates = append(r.updates, status)
	return nil
}

func testOrder(id string, status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:              id,
		Total:           models.NewMoney(1900, "USD"),
		Status:          status,
		PaymentIntentID: "pi_" + id,
	}
}

func TestTransitionStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    models.OrderStatus
		to      models.OrderStatus
		wantErr error
	}{
		{"pending to processing", models.OrderStatusPending, models.OrderStatusProcessing, nil},
		{"processing to shipped", models.OrderStatusProcessing, models.OrderStatusShipped, nil},
		{"shipped to delivered", models.OrderStatusShipped, models.OrderStatusDelivered, nil},
		{"pending to cancelled", models.OrderStatusPending, models.OrderStatusCancelled, nil},
		{"shipped to cancelled rejected", models.OrderStatusShipped, models.OrderStatusCancelled, apperrors.ErrInvalidTransition},
		{"delivered is terminal", models.OrderStatusDelivered, models.OrderStatusShipped, apperrors.ErrInvalidTransition},
		{"cancelled is terminal", models.OrderStatusCancelled, models.OrderStatusProcessing, apperrors.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := newFakeOrderReader(testOrder("ord_1", tt.from))
			svc := NewOrderService(reader, nil, nil, zap.NewNop())

			order, err := svc.TransitionStatus(context.Background(), "ord_1", tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, order.Status)
		})
	}
}

func TestTransitionStatus_UnknownStatus(t *testing.T) {
	reader := newFakeOrderReader(testOrder("ord_1", models.OrderStatusPending))
	svc := NewOrderService(reader, nil, nil, zap.NewNop())

	_, err := svc.TransitionStatus(context.Background(), "ord_1", "teleported")

	var valErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestTransitionStatus_SameStatusIsNoOp(t *testing.T) {
	reader := newFakeOrderReader(testOrder("ord_1", models.OrderStatusProcessing))
	events := &fakeEvents{}
	svc := NewOrderService(reader, nil, events, zap.NewNop())

	order, err := svc.TransitionStatus(context.Background(), "ord_1", models.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Empty(t, reader.updates)
	assert.Empty(t, events.changed)
}

func TestCancelByPaymentIntent(t *testing.T) {
	t.Run("cancels a pending order", func(t *testing.T) {
		order := testOrder("ord_1", models.OrderStatusPending)
		reader := newFakeOrderReader(order)
		events := &fakeEvents{}
		svc := NewOrderService(reader, nil, events, zap.NewNop())

		err := svc.CancelByPaymentIntent(context.Background(), "pi_ord_1", "payment_failed")
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCancelled, order.Status)
		assert.Equal(t, []string{"ord_1"}, events.cancelled)
	})

	t.Run("no order for intent is a no-op", func(t *testing.T) {
		svc := NewOrderService(newFakeOrderReader(), nil, nil, zap.NewNop())
		err := svc.CancelByPaymentIntent(context.Background(), "pi_missing", "payment_failed")
		assert.NoError(t, err)
	})

	t.Run("already cancelled is a no-op", func(t *testing.T) {
		order := testOrder("ord_1", models.OrderStatusCancelled)
		reader := newFakeOrderReader(order)
		events := &fakeEvents{}
		svc := NewOrderService(reader, nil, events, zap.NewNop())

		err := svc.CancelByPaymentIntent(context.Background(), "pi_ord_1", "payment_failed")
		require.NoError(t, err)
		assert.Empty(t, reader.updates)
		assert.Empty(t, events.cancelled)
	})

	t.Run("shipped order is left alone", func(t *testing.T) {
		order := testOrder("ord_1", models.OrderStatusShipped)
		reader := newFakeOrderReader(order)
		svc := NewOrderService(reader, nil, nil, zap.NewNop())

		err := svc.CancelByPaymentIntent(context.Background(), "pi_ord_1", "payment_failed")
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusShipped, order.Status)
	})
}

func TestListUserOrders_ClampsLimit(t *testing.T) {
	reader := newFakeOrderReader()
	svc := NewOrderService(reader, nil, nil, zap.NewNop())

	_, err := svc.ListUserOrders(context.Background(), 42, -5, -1)
	assert.NoError(t, err)

	_, err = svc.ListUserOrders(context.Background(), 42, 5000, 0)
	assert.NoError(t, err)
}
