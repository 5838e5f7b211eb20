package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/apperrors"
	"github.com/spooky-styles/orders-service/internal/config"
	"github.com/spooky-styles/orders-service/internal/models"
)

// uniqueViolation is the Postgres error code for unique-constraint breaks.
const uniqueViolation = "23505"

// Store is the storage handle for orders, inventory and carts. It is
// passed explicitly to every caller so transaction scope is visible at the
// call site.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to Postgres and returns a Store.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logger.Info("database connected",
		zap.String("host", cfg.Host),
		zap.String("name", cfg.Name),
	)

	return &Store{db: db, logger: logger}, nil
}

// NewStore wraps an existing connection. Used by tests.
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// MaterializeTx is the write surface available inside one order
// materialization transaction. All rows for one order, or none.
type MaterializeTx interface {
	// InsertOrder inserts the order row. Returns
	// apperrors.ErrDuplicatePayment when an order already holds the same
	// payment intent id.
	InsertOrder(ctx context.Context, order *models.Order) error

	// InsertOrderItem inserts one frozen cart line.
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error

	// TryDecrement atomically takes quantity units of a product's stock.
	// The row is locked for the rest of the transaction. Returns
	// (available, false, nil) when stock cannot cover the quantity and
	// apperrors.ErrNotFound when the product does not exist. Stock never
	// goes negative.
	TryDecrement(ctx context.Context, productID int64, quantity int) (int, bool, error)
}

// Materialize runs fn inside a single transaction. Any error from fn rolls
// the whole unit back; commit failures surface as retryable.
func (s *Store) Materialize(ctx context.Context, fn func(tx MaterializeTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return apperrors.Retryable(err)
	}

	if err := fn(&materializeTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Retryable(err)
	}
	return nil
}

type materializeTx struct {
	tx *sql.Tx
}

func (t *materializeTx) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, total, currency, status, stripe_payment_intent_id,
			guest_email, guest_name, guest_address_json, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		order.ID,
		order.UserID,
		order.Total.Amount,
		order.Total.Currency,
		order.Status,
		order.PaymentIntentID,
		nullString(order.GuestEmail),
		nullString(order.GuestName),
		nullBytes(order.GuestAddress),
		order.CreatedAt,
		order.UpdatedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperrors.ErrDuplicatePayment
	}
	return err
}

func (t *materializeTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	var customizations []byte
	if len(item.Customizations) > 0 {
		var err error
		customizations, err = marshalCustomizations(item.Customizations)
		if err != nil {
			return err
		}
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, quantity, price, customizations_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		item.ID,
		item.OrderID,
		item.ProductID,
		item.Quantity,
		item.UnitPrice.Amount,
		nullBytes(customizations),
		item.CreatedAt,
	)
	return err
}

func (t *materializeTx) TryDecrement(ctx context.Context, productID int64, quantity int) (int, bool, error) {
	// Lock the row before the read so concurrent checkouts serialize on
	// the same product and the read-check-write stays one unit.
	var stock int
	err := t.tx.QueryRowContext(ctx,
		`SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE`,
		productID,
	).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, apperrors.ErrNotFound
	}
	if err != nil {
		return 0, false, err
	}

	if stock < quantity {
		return stock, false, nil
	}

	newStock := stock - quantity
	_, err = t.tx.ExecContext(ctx,
		`UPDATE products SET stock_quantity = $2, updated_at = NOW() WHERE id = $1`,
		productID, newStock,
	)
	if err != nil {
		return 0, false, err
	}
	return newStock, true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
