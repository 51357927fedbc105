package remote

import (
	"context"
	"net/http"
	"time"

	"github.com/bazarhq/fulfillment/internal/domain/money"
	"github.com/bazarhq/fulfillment/internal/domain/payment"
)

var _ payment.GatewayClient = (*Gateway)(nil)

// Gateway talks to the external payment gateway.
type Gateway struct {
	client *client
}

// NewGateway creates a gateway adapter for the given base URL.
func NewGateway(baseURL string, timeout time.Duration) *Gateway {
	return &Gateway{
		client: newClient("gateway", baseURL, timeout, payment.ErrGatewayUnavailable),
	}
}

type createRemoteOrderRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type createRemoteOrderResponse struct {
	ID string `json:"id"`
}

// CreateRemoteOrder registers the payment with the gateway and returns the
// gateway's order id.
func (g *Gateway) CreateRemoteOrder(ctx context.Context, amount money.Money) (string, error) {
	req := createRemoteOrderRequest{
		Amount:   amount.Decimal().StringFixed(2),
		Currency: amount.Currency,
	}
	var resp createRemoteOrderResponse
	if err := g.client.doJSON(ctx, http.MethodPost, "/v1/orders", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
