package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// Reconciler clears a live cart after an order has been materialized from a
// snapshot of it. Only the snapshotted items, at their quantity at capture,
// are removed: anything the user carted since checkout survives.
type Reconciler struct {
	carts Repository
}

// NewReconciler creates a Reconciler over the given cart repository.
func NewReconciler(carts Repository) *Reconciler {
	return &Reconciler{carts: carts}
}

// Clear removes the snapshot's items from the user's live cart.
func (r *Reconciler) Clear(ctx context.Context, userID string, snap *Snapshot) error {
	if snap == nil || len(snap.Items) == 0 {
		return nil
	}
	if err := r.carts.DecrementItems(ctx, userID, snap.Items); err != nil {
		return errors.Wrap(err, "decrement cart items")
	}
	return nil
}
