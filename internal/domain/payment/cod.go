package payment

import (
	"context"
	"time"
)

// CODStrategy handles cash-on-delivery payments. Nothing is verified at
// checkout time (trust is deferred to physical delivery), so the whole
// strategy is a single guarded transition.
type CODStrategy struct {
	payments Repository
	now      func() time.Time
}

// NewCODStrategy creates a CODStrategy.
func NewCODStrategy(payments Repository) *CODStrategy {
	return &CODStrategy{payments: payments, now: time.Now}
}

// Confirm transitions the payment from created to paid. Confirming an
// already paid or order_created payment is a no-op returning the existing
// record; confirming a failed or expired payment is rejected.
func (c *CODStrategy) Confirm(ctx context.Context, paymentID string) (*Record, error) {
	return c.payments.Update(ctx, paymentID, func(r *Record) error {
		st, err := r.COD()
		if err != nil {
			return err
		}
		switch r.Status {
		case StatusPaid, StatusOrderCreated:
			return nil
		case StatusFailed, StatusExpired:
			return &InvalidTransitionError{From: r.Status, To: StatusPaid}
		}
		st.Confirmed = true
		return r.Transition(StatusPaid, c.now())
	})
}
