package repository

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/models"
)

// ReadCartSnapshot materializes the owner's cart as an immutable priced
// line list. Guest and authenticated carts are keyed differently but yield
// the same shape. Returns apperrors.ErrEmptyCart when there are no lines.
//
// The read deliberately runs outside the materialize transaction: the
// snapshot happens-before the write, so parsing cart data never holds
// catalog locks.
func (s *Store) ReadCartSnapshot(ctx context.Context, owner models.OwnerIdentity) (*models.CartSnapshot, error) {
	query := `
		SELECT ci.product_id, ci.quantity, ci.price, ci.customizations_json
		FROM cart_items ci
		JOIN carts c ON ci.cart_id = c.id
		WHERE ` + cartOwnerClause(owner) + `
		ORDER BY ci.id
	`

	rows, err := s.db.QueryContext(ctx, query, cartOwnerKey(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]models.CartLine, 0)
	for rows.Next() {
		var line models.CartLine
		var customizations []byte
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice.Amount, &customizations); err != nil {
			return nil, err
		}
		if len(customizations) > 0 {
			if err := json.Unmarshal(customizations, &line.Customizations); err != nil {
				return nil, err
			}
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(lines) == 0 {
		return nil, apperrors.ErrEmptyCart
	}

	return &models.CartSnapshot{
		Owner:      owner,
		Lines:      lines,
		CapturedAt: time.Now(),
	}, nil
}

// ClearCart removes every line from the owner's cart. Called after an
// order commits; callers treat failure as best-effort.
func (s *Store) ClearCart(ctx context.Context, owner models.OwnerIdentity) error {
	query := `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts c WHERE ` + cartOwnerClause(owner) + `)
	`

	result, err := s.db.ExecContext(ctx, query, cartOwnerKey(owner))
	if err != nil {
		return err
	}

	cleared, _ := result.RowsAffected()
	s.logger.Debug("cart cleared", zap.Int64("lines", cleared))
	return nil
}

func cartOwnerClause(owner models.OwnerIdentity) string {
	if owner.IsGuest() {
		return "c.guest_token = $1"
	}
	return "c.user_id = $1"
}

func cartOwnerKey(owner models.OwnerIdentity) interface{} {
	if owner.IsGuest() {
		return owner.GuestToken
	}
	return owner.UserID
}
