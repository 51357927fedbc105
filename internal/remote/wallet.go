package remote

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/money"
	"github.com/bazarhq/fulfillment/internal/domain/payment"
)

var _ payment.WalletClient = (*Wallet)(nil)

// Wallet talks to the external prepaid-wallet service.
type Wallet struct {
	client *client
}

// NewWallet creates a wallet adapter for the given base URL.
func NewWallet(baseURL string, timeout time.Duration) *Wallet {
	return &Wallet{
		client: newClient("wallet", baseURL, timeout, payment.ErrWalletUnavailable),
	}
}

type balanceResponse struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// CheckBalance returns the wallet balance for a mobile number.
func (w *Wallet) CheckBalance(ctx context.Context, mobile string) (money.Money, error) {
	var resp balanceResponse
	if err := w.client.doJSON(ctx, http.MethodGet, "/v1/wallets/"+mobile+"/balance", nil, &resp); err != nil {
		return money.Money{}, err
	}
	balance, err := money.Parse(resp.Balance, resp.Currency)
	if err != nil {
		return money.Money{}, errors.Wrap(err, "parse balance")
	}
	return balance, nil
}

type debitRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type debitResponse struct {
	TransactionID string `json:"transaction_id"`
}

// Debit withdraws the amount from the wallet and returns the wallet-side
// transaction id. A 402 from the service means the balance moved since the
// check and is reported as ErrInsufficientBalance.
func (w *Wallet) Debit(ctx context.Context, mobile string, amount money.Money) (string, error) {
	req := debitRequest{
		Amount:   amount.Decimal().StringFixed(2),
		Currency: amount.Currency,
	}
	var resp debitResponse
	err := w.client.doJSON(ctx, http.MethodPost, "/v1/wallets/"+mobile+"/debit", req, &resp)
	if err != nil {
		var stErr *StatusError
		if errors.As(err, &stErr) && stErr.Code == http.StatusPaymentRequired {
			return "", errors.Wrap(payment.ErrInsufficientBalance, "wallet refused debit")
		}
		return "", err
	}
	return resp.TransactionID, nil
}
