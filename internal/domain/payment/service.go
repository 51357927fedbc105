package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/user"
)

// CreateRequest holds the input for creating a payment record.
type CreateRequest struct {
	UserID          string
	Method          Method
	ShippingAddress user.Address
	BillingAddress  user.Address
}

// Service creates payment records: it captures the cart snapshot, persists
// the record, and syncs the checkout address back to the user's profile.
type Service struct {
	payments Repository
	carts    cart.Repository
	capturer *cart.Capturer
	users    user.Directory
	lg       *zap.Logger
	now      func() time.Time
}

// NewService creates a payment Service with the required collaborators.
func NewService(
	payments Repository,
	carts cart.Repository,
	capturer *cart.Capturer,
	users user.Directory,
	lg *zap.Logger,
) *Service {
	return &Service{
		payments: payments,
		carts:    carts,
		capturer: capturer,
		users:    users,
		lg:       lg,
		now:      time.Now,
	}
}

// Create captures the user's cart into an immutable snapshot and creates a
// payment record embedding it. The cart remains live: the user may keep
// shopping without affecting this payment. The checkout address is upserted
// into the user's address book immediately, regardless of how the payment
// later fares — users expect to reuse it either way, so a sync failure is
// logged, not propagated.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Record, error) {
	if !req.Method.Valid() {
		return nil, errors.Errorf("unknown payment method %q", req.Method)
	}

	crt, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	snap, err := s.capturer.Capture(ctx, crt)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &Record{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		Method:          req.Method,
		Status:          StatusCreated,
		Amount:          snap.Total,
		Snapshot:        *snap,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		State:           NewMethodState(req.Method),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.payments.Create(ctx, rec); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}

	if err := s.users.UpsertAddress(ctx, req.UserID, req.ShippingAddress); err != nil {
		s.lg.Warn("address book sync failed",
			zap.String("payment_id", rec.ID),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
	}

	s.lg.Info("payment created",
		zap.String("payment_id", rec.ID),
		zap.String("method", string(rec.Method)),
		zap.String("amount", rec.Amount.String()),
	)
	return rec, nil
}

// Get returns a payment record by id.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.payments.Get(ctx, id)
}

// ExpirySweeper terminalizes abandoned payments: created records older than
// TTL become expired. Expiry is a guarded transition on the same row lock as
// every other transition, so it can never race a legitimate late
// confirmation.
type ExpirySweeper struct {
	payments Repository
	ttl      time.Duration
	interval time.Duration
	lg       *zap.Logger
	now      func() time.Time
}

// NewExpirySweeper creates a sweeper expiring created payments older than
// ttl, checking every interval.
func NewExpirySweeper(payments Repository, ttl, interval time.Duration, lg *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		payments: payments,
		ttl:      ttl,
		interval: interval,
		lg:       lg,
		now:      time.Now,
	}
}

// Run sweeps until ctx is cancelled. It always returns nil on cancellation
// so it composes with an errgroup-managed shutdown.
func (e *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := e.payments.ExpireBefore(ctx, e.now().Add(-e.ttl))
			if err != nil {
				e.lg.Error("expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				e.lg.Info("expired abandoned payments", zap.Int("count", n))
			}
		}
	}
}
