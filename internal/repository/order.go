package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/models"
)

const orderColumns = `
	id, user_id, total, currency, status, stripe_payment_intent_id,
	guest_email, guest_name, guest_address_json, created_at, updated_at
`

// GetByPaymentIntentID looks an order up by its external payment reference.
// Returns apperrors.ErrNotFound when no order holds the intent.
func (s *Store) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE stripe_payment_intent_id = $1`,
		paymentIntentID,
	)
	return s.scanOrder(ctx, row)
}

// GetByID retrieves an order with its items.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		id,
	)
	return s.scanOrder(ctx, row)
}

// ListByUser retrieves a user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		items, err := s.getOrderItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		for i := range items {
			items[i].UnitPrice.Currency = order.Total.Currency
		}
		order.Items = items
	}
	return orders, nil
}

// UpdateStatus moves an order to status. Returns apperrors.ErrNotFound for
// an unknown id.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		s.logger.Error("failed to update order status",
			zap.String("order_id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperrors.ErrNotFound
	}

	s.logger.Info("order status updated",
		zap.String("order_id", id),
		zap.String("status", string(status)),
	)
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanOrder(ctx context.Context, row rowScanner) (*models.Order, error) {
	order, err := scanOrderRow(row)
	if err != nil {
		return nil, err
	}

	items, err := s.getOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	// Item prices share the order currency; only the amount is stored.
	for i := range items {
		items[i].UnitPrice.Currency = order.Total.Currency
	}
	order.Items = items
	return order, nil
}

func scanOrderRow(row rowScanner) (*models.Order, error) {
	var order models.Order
	var userID sql.NullInt64
	var guestEmail, guestName sql.NullString
	var guestAddress []byte

	err := row.Scan(
		&order.ID,
		&userID,
		&order.Total.Amount,
		&order.Total.Currency,
		&order.Status,
		&order.PaymentIntentID,
		&guestEmail,
		&guestName,
		&guestAddress,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		order.UserID = &userID.Int64
	}
	if guestEmail.Valid {
		order.GuestEmail = guestEmail.String
	}
	if guestName.Valid {
		order.GuestName = guestName.String
	}
	if len(guestAddress) > 0 {
		order.GuestAddress = json.RawMessage(guestAddress)
	}
	return &order, nil
}

func (s *Store) getOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price, customizations_json, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.OrderItem, 0)
	for rows.Next() {
		var item models.OrderItem
		var customizations []byte
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice.Amount,
			&customizations,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(customizations) > 0 {
			if err := json.Unmarshal(customizations, &item.Customizations); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func marshalCustomizations(c map[string]string) ([]byte, error) {
	return json.Marshal(c)
}
