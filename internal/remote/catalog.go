package remote

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/money"
)

var _ cart.Catalog = (*Catalog)(nil)

// Catalog talks to the product catalog service, the authoritative source of
// prices and stock at capture time.
type Catalog struct {
	client *client
}

// NewCatalog creates a catalog adapter for the given base URL.
func NewCatalog(baseURL string, timeout time.Duration) *Catalog {
	return &Catalog{
		client: newClient("catalog", baseURL, timeout, cart.ErrCatalogUnavailable),
	}
}

type priceResponse struct {
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

type stockResponse struct {
	Stock int `json:"stock"`
}

// GetPrice returns the current unit price of a product variant.
func (c *Catalog) GetPrice(ctx context.Context, productID, variantID string) (money.Money, error) {
	var resp priceResponse
	if err := c.client.doJSON(ctx, http.MethodGet, productPath(productID, variantID)+"/price", nil, &resp); err != nil {
		return money.Money{}, err
	}
	price, err := money.Parse(resp.Price, resp.Currency)
	if err != nil {
		return money.Money{}, errors.Wrap(err, "parse price")
	}
	return price, nil
}

// GetStock returns the available stock of a product variant.
func (c *Catalog) GetStock(ctx context.Context, productID, variantID string) (int, error) {
	var resp stockResponse
	if err := c.client.doJSON(ctx, http.MethodGet, productPath(productID, variantID)+"/stock", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Stock, nil
}

func productPath(productID, variantID string) string {
	p := "/v1/products/" + url.PathEscape(productID)
	if variantID != "" {
		p += "/variants/" + url.PathEscape(variantID)
	}
	return p
}
