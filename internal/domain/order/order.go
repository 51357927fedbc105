// Package order materializes paid payments into durable orders.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/money"
)

// Sentinel errors for order persistence.
var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicatePayment is returned by Create when an order already
	// exists for the payment. The materializer treats it as "someone else
	// won the race" and fetches the existing order.
	ErrDuplicatePayment = errors.New("order already exists for payment")
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderShipped OrderStatus = "shipped"
)

// PaymentStatus is the order's view of how its payment stands. COD orders
// start pending (money moves at the door); gateway and wallet orders start
// paid.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Item is a single order line, copied verbatim from the cart snapshot.
type Item struct {
	ProductID string      `json:"product_id"`
	VariantID string      `json:"variant_id,omitempty"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
}

// Order is a materialized, append-only record of a completed checkout. It
// references its payment by id; it never owns the payment's lifecycle.
type Order struct {
	ID            string
	Number        string
	UserID        string
	PaymentID     string
	Items         []Item
	Subtotal      money.Money
	Tax           money.Money
	ShippingFee   money.Money
	Discount      money.Money
	Total         money.Money
	OrderStatus   OrderStatus
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
}

// Repository defines persistence operations for orders.
//
// Create must enforce a unique constraint on PaymentID and report a
// violation as ErrDuplicatePayment — that constraint, not application
// check-then-create logic, is what makes materialization exactly-once.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Order, error)
}

// Notifier dispatches a fire-and-forget order-created notification. It must
// never be on the critical path: implementations log failures and move on.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, o *Order)
}

// NewNumber generates a human-readable order number such as
// ORD-20260828-4f2a1c. Uniqueness is backed by the orders table constraint;
// the random suffix makes collisions within a day vanishingly rare.
func NewNumber(now time.Time) string {
	var suffix [3]byte
	_, _ = rand.Read(suffix[:])
	return "ORD-" + now.UTC().Format("20060102") + "-" + hex.EncodeToString(suffix[:])
}
