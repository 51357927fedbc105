package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
)

const getCartItemsSQL = `SELECT product_id, variant_id, unit_price, currency, quantity
	FROM cart_items WHERE user_id = $1 ORDER BY added_at`

const upsertCartItemSQL = `INSERT INTO cart_items (user_id, product_id, variant_id,
		unit_price, currency, quantity)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (user_id, product_id, variant_id)
	DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

// GREATEST clamps at zero: the user may have shrunk a line below its
// captured quantity since checkout, and the CHECK constraint would abort the
// whole reconcile otherwise.
const decrementCartItemSQL = `UPDATE cart_items
	SET quantity = GREATEST(quantity - $4, 0)
	WHERE user_id = $1 AND product_id = $2 AND variant_id = $3`

const deleteEmptyCartItemsSQL = `DELETE FROM cart_items
	WHERE user_id = $1 AND quantity <= 0`

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the user's live cart. A user with no rows gets an empty cart.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("querying cart items: %w", err)
	}
	defer rows.Close()

	crt := &cart.Cart{UserID: userID}
	for rows.Next() {
		var (
			it       cart.Item
			price    decimal.Decimal
			currency string
		)
		if err := rows.Scan(&it.ProductID, &it.VariantID, &price, &currency, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		if it.UnitPrice, err = scanMoney(price, currency); err != nil {
			return nil, err
		}
		crt.Items = append(crt.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cart items: %w", err)
	}
	return crt, nil
}

// AddItem adds quantity of a product to the user's cart, merging with an
// existing line for the same product and variant.
func (r *CartRepository) AddItem(ctx context.Context, userID string, it cart.Item) error {
	_, err := r.pool.Exec(ctx, upsertCartItemSQL,
		userID, it.ProductID, it.VariantID,
		it.UnitPrice.Decimal(), it.UnitPrice.Currency, it.Quantity,
	)
	if err != nil {
		return fmt.Errorf("adding cart item: %w", err)
	}
	return nil
}

// DecrementItems subtracts the captured quantities from the live cart in one
// transaction and drops lines that reach zero. Quantity added after capture,
// and lines carted after capture, survive.
func (r *CartRepository) DecrementItems(ctx context.Context, userID string, items []cart.SnapshotItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, it := range items {
		_, err := tx.Exec(ctx, decrementCartItemSQL, userID, it.ProductID, it.VariantID, it.Quantity)
		if err != nil {
			return fmt.Errorf("decrementing cart item %q: %w", it.ProductID, err)
		}
	}
	if _, err := tx.Exec(ctx, deleteEmptyCartItemsSQL, userID); err != nil {
		return fmt.Errorf("deleting empty cart items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing cart reconciliation: %w", err)
	}
	return nil
}
