// Package memory provides in-memory repository implementations with the same
// locking guarantees as the PostgreSQL ones: single writer per payment
// record, atomic cart decrements, and a unique payment constraint on orders.
// They back the domain tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/order"
	"github.com/bazarhq/fulfillment/internal/domain/payment"
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository stores payment records guarded by a per-record mutex,
// mirroring the row-lock semantics of the PostgreSQL implementation.
type PaymentRepository struct {
	mu    sync.Mutex
	recs  map[string]*payment.Record
	locks map[string]*sync.Mutex
}

// NewPaymentRepository creates an empty in-memory payment repository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		recs:  make(map[string]*payment.Record),
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *PaymentRepository) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Create stores a new payment record.
func (r *PaymentRepository) Create(_ context.Context, rec *payment.Record) error {
	cp, err := rec.Clone()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.recs[rec.ID]; exists {
		return errors.Errorf("payment %s already exists", rec.ID)
	}
	r.recs[rec.ID] = cp
	return nil
}

// Get returns a deep copy of the record.
func (r *PaymentRepository) Get(_ context.Context, id string) (*payment.Record, error) {
	r.mu.Lock()
	rec, ok := r.recs[id]
	r.mu.Unlock()
	if !ok {
		return nil, payment.ErrNotFound
	}
	return rec.Clone()
}

// Update runs fn on a copy of the record under its per-record lock and
// commits the copy only when fn succeeds.
func (r *PaymentRepository) Update(ctx context.Context, id string, fn func(*payment.Record) error) (*payment.Record, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}

	committed, err := rec.Clone()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.recs[id] = committed
	r.mu.Unlock()
	return rec, nil
}

// ExpireBefore expires created payments older than cutoff.
func (r *PaymentRepository) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	var stale []string
	for id, rec := range r.recs {
		if rec.Status == payment.StatusCreated && rec.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range stale {
		_, err := r.Update(ctx, id, func(rec *payment.Record) error {
			// Re-check under the lock: a confirm may have slipped in.
			if rec.Status != payment.StatusCreated || !rec.CreatedAt.Before(cutoff) {
				return errSkipExpire
			}
			return rec.Transition(payment.StatusExpired, time.Now())
		})
		if err != nil {
			if errors.Is(err, errSkipExpire) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

var errSkipExpire = errors.New("not expirable")

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores orders with a unique constraint on payment id.
type OrderRepository struct {
	mu        sync.Mutex
	byID      map[string]*order.Order
	byPayment map[string]*order.Order
}

// NewOrderRepository creates an empty in-memory order repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:      make(map[string]*order.Order),
		byPayment: make(map[string]*order.Order),
	}
}

// Create persists the order, enforcing one order per payment.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPayment[o.PaymentID]; exists {
		return order.ErrDuplicatePayment
	}
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	r.byID[cp.ID] = &cp
	r.byPayment[cp.PaymentID] = &cp
	return nil
}

// GetByID returns an order by its id.
func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// GetByPaymentID returns the order created for a payment.
func (r *OrderRepository) GetByPaymentID(_ context.Context, paymentID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byPayment[paymentID]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores live carts keyed by user.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string]*cart.Cart
}

// NewCartRepository creates an empty in-memory cart repository.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]*cart.Cart)}
}

// Put stores a cart, replacing any existing one for the user.
func (r *CartRepository) Put(c *cart.Cart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	r.carts[c.UserID] = &cp
}

// Get returns a copy of the user's cart, or an empty cart.
func (r *CartRepository) Get(_ context.Context, userID string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[userID]
	if !ok {
		return &cart.Cart{UserID: userID}, nil
	}
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return &cp, nil
}

// DecrementItems atomically subtracts captured quantities from the live
// cart, dropping lines that reach zero and leaving later additions alone.
func (r *CartRepository) DecrementItems(_ context.Context, userID string, items []cart.SnapshotItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[userID]
	if !ok {
		return nil
	}

	captured := make(map[string]int, len(items))
	for _, it := range items {
		captured[it.ProductID+"/"+it.VariantID] += it.Quantity
	}

	kept := c.Items[:0]
	for _, it := range c.Items {
		key := it.ProductID + "/" + it.VariantID
		if qty, ok := captured[key]; ok {
			it.Quantity -= qty
			delete(captured, key)
		}
		if it.Quantity > 0 {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	return nil
}
