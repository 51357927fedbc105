package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/money"
)

// ErrTotalMismatch indicates a snapshot whose stored total no longer equals
// subtotal + tax + shipping - discount. This is data corruption, not user
// error: it is never recomputed away.
var ErrTotalMismatch = errors.New("snapshot total does not match its components")

// ErrCatalogUnavailable indicates a timeout or transport failure talking to
// the product catalog. Transient: checkout may be retried, nothing was
// captured.
var ErrCatalogUnavailable = errors.New("product catalog unavailable")

// PriceMismatchError is returned when a carted unit price has drifted from
// the current catalog price beyond the configured tolerance. The cart is
// stale and the user must re-review it.
type PriceMismatchError struct {
	ProductID    string
	VariantID    string
	CartPrice    money.Money
	CatalogPrice money.Money
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price changed for product %s: carted at %s, catalog has %s",
		e.ProductID, e.CartPrice, e.CatalogPrice)
}

// SnapshotItem is a cart line frozen at capture time.
type SnapshotItem struct {
	ProductID string      `json:"product_id"`
	VariantID string      `json:"variant_id,omitempty"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
}

// Snapshot is an immutable copy of a cart's items and computed totals at a
// point in time. It is embedded verbatim in the payment record, so cart
// mutations after capture have no effect on an in-flight payment.
type Snapshot struct {
	Items       []SnapshotItem `json:"items"`
	Subtotal    money.Money    `json:"subtotal"`
	Tax         money.Money    `json:"tax"`
	ShippingFee money.Money    `json:"shipping_fee"`
	Discount    money.Money    `json:"discount"`
	Total       money.Money    `json:"total"`
	CapturedAt  time.Time      `json:"captured_at"`
}

// Validate re-checks the total invariant. It holds at capture by
// construction; materialization re-validates it before building an order.
func (s *Snapshot) Validate() error {
	sum := money.Zero(s.Total.Currency)
	for _, item := range s.Items {
		line := item.UnitPrice.MulInt(int64(item.Quantity))
		var err error
		sum, err = sum.Add(line)
		if err != nil {
			return errors.Wrap(err, "sum line items")
		}
	}
	if !sum.Equal(s.Subtotal) {
		return errors.Wrapf(ErrTotalMismatch, "subtotal %s, line items sum to %s", s.Subtotal, sum)
	}

	withTax, err := s.Subtotal.Add(s.Tax)
	if err != nil {
		return errors.Wrap(err, "add tax")
	}
	withShipping, err := withTax.Add(s.ShippingFee)
	if err != nil {
		return errors.Wrap(err, "add shipping")
	}
	total, err := withShipping.Sub(s.Discount)
	if err != nil {
		return errors.Wrap(err, "subtract discount")
	}
	if !total.Equal(s.Total) {
		return errors.Wrapf(ErrTotalMismatch, "stored %s, computed %s", s.Total, total)
	}
	return nil
}

// Catalog is the product catalog collaborator: the authoritative source of
// unit prices and stock levels at capture time.
type Catalog interface {
	GetPrice(ctx context.Context, productID, variantID string) (money.Money, error)
	GetStock(ctx context.Context, productID, variantID string) (int, error)
}

// CapturerConfig holds the pricing knobs applied at capture.
type CapturerConfig struct {
	// Currency is the currency every captured amount is denominated in.
	Currency string
	// TaxRateBP is the tax rate in basis points applied to the subtotal.
	TaxRateBP int64
	// ShippingFee is the flat shipping fee in minor units.
	ShippingFee int64
	// PriceToleranceMinor is the allowed absolute drift, in minor units,
	// between a carted price and the current catalog price before the cart
	// is considered stale.
	PriceToleranceMinor int64
}

// Capturer builds immutable snapshots from live carts using authoritative
// catalog prices and integer money arithmetic.
type Capturer struct {
	catalog Catalog
	cfg     CapturerConfig
	now     func() time.Time
}

// NewCapturer creates a Capturer with the given catalog collaborator.
func NewCapturer(catalog Catalog, cfg CapturerConfig) *Capturer {
	return &Capturer{catalog: catalog, cfg: cfg, now: time.Now}
}

// Capture reads the cart's items and the catalog's current unit prices and
// computes subtotal, tax, shipping, discount and total. It fails with
// ErrEmptyCart when the cart has no items and with PriceMismatchError when a
// carted price has drifted beyond the tolerance.
func (c *Capturer) Capture(ctx context.Context, crt *Cart) (*Snapshot, error) {
	if crt == nil || len(crt.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]SnapshotItem, 0, len(crt.Items))
	subtotal := money.Zero(c.cfg.Currency)
	for _, it := range crt.Items {
		price, err := c.catalog.GetPrice(ctx, it.ProductID, it.VariantID)
		if err != nil {
			return nil, errors.Wrapf(err, "get price for product %s", it.ProductID)
		}

		drift := price.Amount - it.UnitPrice.Amount
		if drift < 0 {
			drift = -drift
		}
		if drift > c.cfg.PriceToleranceMinor {
			return nil, &PriceMismatchError{
				ProductID:    it.ProductID,
				VariantID:    it.VariantID,
				CartPrice:    it.UnitPrice,
				CatalogPrice: price,
			}
		}

		// The catalog price is authoritative for the snapshot.
		items = append(items, SnapshotItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			UnitPrice: price,
			Quantity:  it.Quantity,
		})
		subtotal, err = subtotal.Add(price.MulInt(int64(it.Quantity)))
		if err != nil {
			return nil, errors.Wrap(err, "accumulate subtotal")
		}
	}

	tax := subtotal.PercentBP(c.cfg.TaxRateBP)
	shipping := money.New(c.cfg.ShippingFee, c.cfg.Currency)
	discount := crt.Discount
	if discount.Currency == "" {
		discount = money.Zero(c.cfg.Currency)
	}

	withTax, err := subtotal.Add(tax)
	if err != nil {
		return nil, errors.Wrap(err, "add tax")
	}
	withShipping, err := withTax.Add(shipping)
	if err != nil {
		return nil, errors.Wrap(err, "add shipping")
	}
	total, err := withShipping.Sub(discount)
	if err != nil {
		return nil, errors.Wrap(err, "subtract discount")
	}

	return &Snapshot{
		Items:       items,
		Subtotal:    subtotal,
		Tax:         tax,
		ShippingFee: shipping,
		Discount:    discount,
		Total:       total,
		CapturedAt:  c.now().UTC(),
	}, nil
}
