package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/money"
)

// GatewayClient is the external payment gateway collaborator. Implementations
// must bound their calls with timeouts; transport failures and timeouts are
// reported as ErrGatewayUnavailable.
type GatewayClient interface {
	CreateRemoteOrder(ctx context.Context, amount money.Money) (gatewayOrderID string, err error)
}

// GatewayStrategy drives a card/UPI payment through the external gateway:
// Initiate creates the remote order, Confirm verifies the returned signature
// and marks the payment paid.
type GatewayStrategy struct {
	payments Repository
	client   GatewayClient
	secret   []byte
	now      func() time.Time
}

// NewGatewayStrategy creates a GatewayStrategy. secret is the shared HMAC
// secret used to recompute confirmation signatures locally.
func NewGatewayStrategy(payments Repository, client GatewayClient, secret []byte) *GatewayStrategy {
	return &GatewayStrategy{
		payments: payments,
		client:   client,
		secret:   secret,
		now:      time.Now,
	}
}

// Initiate creates the remote gateway order for the payment and stores its
// id. The payment status stays created. Retries are safe: an existing remote
// order id is returned as-is, and a gateway failure leaves the record
// untouched (ErrGatewayUnavailable).
func (g *GatewayStrategy) Initiate(ctx context.Context, paymentID string) (*Record, error) {
	rec, err := g.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	st, err := rec.Gateway()
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case StatusCreated:
	case StatusPaid, StatusOrderCreated:
		return rec, nil
	default:
		return nil, &InvalidTransitionError{From: rec.Status, To: StatusPaid}
	}
	if st.GatewayOrderID != "" {
		return rec, nil
	}

	remoteID, err := g.client.CreateRemoteOrder(ctx, rec.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "create remote order")
	}

	return g.payments.Update(ctx, paymentID, func(r *Record) error {
		st, err := r.Gateway()
		if err != nil {
			return err
		}
		// A concurrent initiate may have won; keep the first remote id.
		if st.GatewayOrderID == "" {
			st.GatewayOrderID = remoteID
			r.UpdatedAt = g.now()
		}
		return nil
	})
}

// Confirm verifies the gateway's confirmation signature and transitions the
// payment to paid. The expected signature is recomputed locally from the
// remote order id, the gateway payment id and the shared secret, and
// compared in constant time. A mismatch fails the payment terminally. A
// confirm arriving for an already paid or order_created payment is a no-op
// returning the existing record, so duplicate webhooks and client retries
// are harmless.
func (g *GatewayStrategy) Confirm(ctx context.Context, paymentID, gatewayPaymentID, signature string) (*Record, error) {
	var verifyErr error
	rec, err := g.payments.Update(ctx, paymentID, func(r *Record) error {
		st, err := r.Gateway()
		if err != nil {
			return err
		}
		switch r.Status {
		case StatusPaid, StatusOrderCreated:
			return nil
		case StatusFailed, StatusExpired:
			return &InvalidTransitionError{From: r.Status, To: StatusPaid}
		}
		if st.GatewayOrderID == "" {
			return &PreconditionError{Step: "confirm", Missing: "initiate"}
		}

		if !g.signatureValid(st.GatewayOrderID, gatewayPaymentID, signature) {
			// Record the failure, then surface the verification error after
			// the transition has been persisted.
			st.GatewayPaymentID = gatewayPaymentID
			st.SignatureVerified = false
			verifyErr = ErrSignatureVerification
			return r.Transition(StatusFailed, g.now())
		}

		st.GatewayPaymentID = gatewayPaymentID
		st.SignatureVerified = true
		return r.Transition(StatusPaid, g.now())
	})
	if err != nil {
		return nil, err
	}
	if verifyErr != nil {
		return rec, verifyErr
	}
	return rec, nil
}

// signatureValid recomputes the expected HMAC-SHA256 signature and compares
// it in constant time.
func (g *GatewayStrategy) signatureValid(gatewayOrderID, gatewayPaymentID, signature string) bool {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignGatewayConfirmation computes the confirmation signature for the given
// ids and secret. Shared with tests and with webhook tooling.
func SignGatewayConfirmation(gatewayOrderID, gatewayPaymentID string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
