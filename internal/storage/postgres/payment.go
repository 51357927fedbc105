package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bazarhq/fulfillment/internal/domain/payment"
)

const paymentColumns = `id, user_id, method, status, amount, currency,
	snapshot, shipping_address, billing_address, method_state, order_id,
	created_at, updated_at`

const createPaymentSQL = `INSERT INTO payments (` + paymentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const getPaymentSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

const lockPaymentSQL = getPaymentSQL + ` FOR UPDATE`

const savePaymentSQL = `UPDATE payments
	SET status = $2, amount = $3, snapshot = $4, method_state = $5,
		order_id = $6, updated_at = $7
	WHERE id = $1`

const expirePaymentsSQL = `UPDATE payments
	SET status = 'expired', updated_at = now()
	WHERE status = 'created' AND created_at < $1`

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
// Update holds a row lock for the duration of the mutation, which is what
// gives the status machine its single-writer-per-record guarantee.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, rec *payment.Record) error {
	args, err := paymentArgs(rec)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, createPaymentSQL, args...); err != nil {
		return fmt.Errorf("creating payment %q: %w", rec.ID, err)
	}
	return nil
}

// Get returns a payment record by id.
func (r *PaymentRepository) Get(ctx context.Context, id string) (*payment.Record, error) {
	rec, err := scanPayment(r.pool.QueryRow(ctx, getPaymentSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment %q: %w", id, err)
	}
	return rec, nil
}

// Update runs fn on the record inside a transaction holding the row lock.
// When fn fails the transaction rolls back and the record is unchanged.
func (r *PaymentRepository) Update(ctx context.Context, id string, fn func(*payment.Record) error) (*payment.Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	rec, err := scanPayment(tx.QueryRow(ctx, lockPaymentSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("locking payment %q: %w", id, err)
	}

	if err := fn(rec); err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	state, err := payment.EncodeMethodState(rec.State)
	if err != nil {
		return nil, fmt.Errorf("encoding method state: %w", err)
	}
	_, err = tx.Exec(ctx, savePaymentSQL,
		rec.ID, rec.Status, rec.Amount.Decimal(), snapshot, state,
		nullable(rec.OrderID), rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("saving payment %q: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing payment %q: %w", id, err)
	}
	return rec, nil
}

// ExpireBefore terminalizes created payments older than cutoff in a single
// guarded statement.
func (r *PaymentRepository) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, expirePaymentsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expiring payments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func paymentArgs(rec *payment.Record) ([]any, error) {
	snapshot, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	shipping, err := json.Marshal(rec.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("marshaling shipping address: %w", err)
	}
	billing, err := json.Marshal(rec.BillingAddress)
	if err != nil {
		return nil, fmt.Errorf("marshaling billing address: %w", err)
	}
	state, err := payment.EncodeMethodState(rec.State)
	if err != nil {
		return nil, fmt.Errorf("encoding method state: %w", err)
	}
	return []any{
		rec.ID, rec.UserID, rec.Method, rec.Status,
		rec.Amount.Decimal(), rec.Amount.Currency,
		snapshot, shipping, billing, state,
		nullable(rec.OrderID), rec.CreatedAt, rec.UpdatedAt,
	}, nil
}

func scanPayment(row pgx.Row) (*payment.Record, error) {
	var (
		rec      payment.Record
		amount   decimal.Decimal
		currency string
		snapshot []byte
		shipping []byte
		billing  []byte
		state    []byte
		orderID  *string
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Method, &rec.Status, &amount, &currency,
		&snapshot, &shipping, &billing, &state, &orderID,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.Amount, err = scanMoney(amount, currency); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	if err := json.Unmarshal(shipping, &rec.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(billing, &rec.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshaling billing address: %w", err)
	}
	if rec.State, err = payment.DecodeMethodState(state); err != nil {
		return nil, fmt.Errorf("decoding method state: %w", err)
	}
	if orderID != nil {
		rec.OrderID = *orderID
	}
	return &rec, nil
}

// nullable maps an empty string to NULL so unique columns stay sparse.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
