package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bazarhq/fulfillment/internal/domain/money"
	"github.com/bazarhq/fulfillment/internal/domain/order"
)

const createOrderSQL = `INSERT INTO orders (id, number, user_id, payment_id,
		subtotal, tax, shipping_fee, discount, total, currency,
		order_status, payment_status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const createOrderItemSQL = `INSERT INTO order_items (order_id, position,
		product_id, variant_id, unit_price, quantity)
	VALUES ($1, $2, $3, $4, $5, $6)`

const orderColumns = `id, number, user_id, payment_id,
	subtotal, tax, shipping_fee, discount, total, currency,
	order_status, payment_status, created_at`

const getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

const getOrderByPaymentSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_id = $1`

const getOrderItemsSQL = `SELECT product_id, variant_id, unit_price, quantity
	FROM order_items WHERE order_id = $1 ORDER BY position`

// ordersPaymentKey is the unique constraint that makes materialization
// exactly-once across processes.
const ordersPaymentKey = "orders_payment_id_key"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its items in one transaction. A second order
// for the same payment hits the unique constraint and is reported as
// order.ErrDuplicatePayment.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, o.PaymentID,
		o.Subtotal.Decimal(), o.Tax.Decimal(), o.ShippingFee.Decimal(),
		o.Discount.Decimal(), o.Total.Decimal(), o.Total.Currency,
		o.OrderStatus, o.PaymentStatus, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, ordersPaymentKey) {
			return order.ErrDuplicatePayment
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for i, it := range o.Items {
		_, err = tx.Exec(ctx, createOrderItemSQL,
			o.ID, i, it.ProductID, it.VariantID, it.UnitPrice.Decimal(), it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("creating order item %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order with its items by order id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderByIDSQL, id)
}

// GetByPaymentID returns the order created for a payment.
func (r *OrderRepository) GetByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	return r.get(ctx, getOrderByPaymentSQL, paymentID)
}

func (r *OrderRepository) get(ctx context.Context, query, arg string) (*order.Order, error) {
	var (
		o        order.Order
		currency string

		subtotal, tax, shipping, discount, total decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&o.ID, &o.Number, &o.UserID, &o.PaymentID,
		&subtotal, &tax, &shipping, &discount, &total, &currency,
		&o.OrderStatus, &o.PaymentStatus, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	for _, pair := range []struct {
		dst *money.Money
		src decimal.Decimal
	}{
		{&o.Subtotal, subtotal},
		{&o.Tax, tax},
		{&o.ShippingFee, shipping},
		{&o.Discount, discount},
		{&o.Total, total},
	} {
		m, err := scanMoney(pair.src, currency)
		if err != nil {
			return nil, err
		}
		*pair.dst = m
	}

	o.Items, err = r.items(ctx, o.ID, currency)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) items(ctx context.Context, orderID, currency string) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var (
			it    order.Item
			price decimal.Decimal
		)
		if err := rows.Scan(&it.ProductID, &it.VariantID, &price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		if it.UnitPrice, err = scanMoney(price, currency); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}
	return items, nil
}
