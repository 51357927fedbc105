package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/payment"
)

// ErrNotPaid is returned when materialization is attempted on a payment that
// has not reached paid.
var ErrNotPaid = errors.New("payment is not paid")

// Materializer turns a paid payment record into exactly one order.
//
// Two layers guarantee exactly-once: an in-process singleflight keyed by
// payment id collapses concurrent callers (webhook + client poll), and the
// orders table's unique constraint on payment_id catches races across
// processes. The loser of either race receives the already-created order.
type Materializer struct {
	payments   payment.Repository
	orders     Repository
	reconciler *cart.Reconciler
	notifier   Notifier
	lg         *zap.Logger
	group      singleflight.Group
	now        func() time.Time
}

// NewMaterializer creates a Materializer with the required collaborators.
func NewMaterializer(
	payments payment.Repository,
	orders Repository,
	reconciler *cart.Reconciler,
	notifier Notifier,
	lg *zap.Logger,
) *Materializer {
	return &Materializer{
		payments:   payments,
		orders:     orders,
		reconciler: reconciler,
		notifier:   notifier,
		lg:         lg,
		now:        time.Now,
	}
}

// Materialize creates the order for a paid payment, idempotently. Invoked N
// times concurrently it yields one order, and every caller observes the same
// order id. If the payment already reached order_created the existing order
// is returned.
//
// Failure after paid never rolls the payment back: money has moved, so the
// record stays paid and the error is escalated for manual reconciliation.
func (m *Materializer) Materialize(ctx context.Context, paymentID string) (*Order, error) {
	v, err, _ := m.group.Do(paymentID, func() (any, error) {
		return m.materialize(ctx, paymentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Order), nil
}

func (m *Materializer) materialize(ctx context.Context, paymentID string) (*Order, error) {
	rec, err := m.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case payment.StatusOrderCreated:
		return m.orders.GetByPaymentID(ctx, rec.ID)
	case payment.StatusPaid:
	default:
		return nil, errors.Wrapf(ErrNotPaid, "payment %s is %s", rec.ID, rec.Status)
	}

	// The snapshot's total invariant held at capture; a mismatch now means
	// the stored data was corrupted. Escalate, never recompute.
	if err := rec.Snapshot.Validate(); err != nil {
		m.lg.Error("snapshot invariant violated at materialization, payment needs manual reconciliation",
			zap.String("payment_id", rec.ID),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "validate snapshot")
	}

	now := m.now().UTC()
	items := make([]Item, len(rec.Snapshot.Items))
	for i, it := range rec.Snapshot.Items {
		items[i] = Item{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}

	paymentStatus := PaymentPaid
	if rec.Method == payment.MethodCOD {
		paymentStatus = PaymentPending
	}

	o := &Order{
		ID:            uuid.New().String(),
		Number:        NewNumber(now),
		UserID:        rec.UserID,
		PaymentID:     rec.ID,
		Items:         items,
		Subtotal:      rec.Snapshot.Subtotal,
		Tax:           rec.Snapshot.Tax,
		ShippingFee:   rec.Snapshot.ShippingFee,
		Discount:      rec.Snapshot.Discount,
		Total:         rec.Snapshot.Total,
		OrderStatus:   OrderPending,
		PaymentStatus: paymentStatus,
		CreatedAt:     now,
	}

	if err := m.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			// Another process won the race; its order is the order.
			o, err = m.orders.GetByPaymentID(ctx, rec.ID)
			if err != nil {
				return nil, errors.Wrap(err, "fetch winning order")
			}
		} else {
			return nil, errors.Wrap(err, "create order")
		}
	}

	if _, err := m.payments.Update(ctx, rec.ID, func(r *payment.Record) error {
		if r.Status == payment.StatusOrderCreated {
			return nil
		}
		r.OrderID = o.ID
		return r.Transition(payment.StatusOrderCreated, now)
	}); err != nil {
		// The order exists but the payment row update failed. Surface the
		// error; the payment stays paid and a retry will find the existing
		// order via the duplicate path.
		return nil, errors.Wrap(err, "mark payment order_created")
	}

	// Clearing the snapshotted items from the live cart is best-effort: a
	// failure here must not undo a created order.
	if err := m.reconciler.Clear(ctx, rec.UserID, &rec.Snapshot); err != nil {
		m.lg.Warn("cart reconciliation failed",
			zap.String("payment_id", rec.ID),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	m.notifier.NotifyOrderCreated(ctx, o)

	m.lg.Info("order materialized",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("payment_id", rec.ID),
	)
	return o, nil
}
