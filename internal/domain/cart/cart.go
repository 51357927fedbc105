// Package cart models the live shopping cart and its immutable snapshot.
package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/money"
)

// ErrEmptyCart is returned when checkout is attempted on a cart with no items.
var ErrEmptyCart = errors.New("cart is empty")

// Item is a single line in a live cart. UnitPrice is the price the item was
// carted at; the catalog remains authoritative and is re-read at capture.
type Item struct {
	ProductID string      `json:"product_id"`
	VariantID string      `json:"variant_id,omitempty"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
}

// Cart is a user's live cart. It keeps changing while the user shops, which
// is exactly why payments operate on a Snapshot instead.
type Cart struct {
	UserID   string
	Items    []Item
	Discount money.Money
}

// Repository provides persistence for live carts.
//
// DecrementItems subtracts the given captured quantities from the matching
// live cart lines (by product and variant identity) and removes lines that
// reach zero. Lines the user added after capture, and quantity the user added
// on top of a captured line, survive untouched. The operation must be atomic
// per cart.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	DecrementItems(ctx context.Context, userID string, items []SnapshotItem) error
}
