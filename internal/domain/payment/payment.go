// Package payment holds the payment aggregate: the record, its status
// machine, the per-method sub-state, and the method strategies that drive a
// record from creation to paid.
package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/money"
	"github.com/bazarhq/fulfillment/internal/domain/user"
)

// Method identifies how a payment is collected.
type Method string

const (
	MethodGateway Method = "gateway"
	MethodCOD     Method = "cod"
	MethodWallet  Method = "wallet"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodGateway, MethodCOD, MethodWallet:
		return true
	}
	return false
}

// Status is the top-level lifecycle state of a payment record.
type Status string

const (
	StatusCreated      Status = "created"
	StatusPaid         Status = "paid"
	StatusOrderCreated Status = "order_created"
	StatusFailed       Status = "failed"
	StatusExpired      Status = "expired"
)

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusOrderCreated, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// transitions is the allowed edge set of the status machine.
var transitions = map[Status][]Status{
	StatusCreated: {StatusPaid, StatusFailed, StatusExpired},
	StatusPaid:    {StatusOrderCreated},
}

// canTransition reports whether from -> to is an allowed edge.
func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MethodState is the method-specific sub-state of a payment record. Exactly
// one variant exists per method, so wallet fields can never appear on a COD
// payment.
type MethodState interface {
	Method() Method
	isMethodState()
}

// GatewayState tracks a card/UPI payment routed through the external gateway.
type GatewayState struct {
	GatewayOrderID    string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID  string `json:"gateway_payment_id,omitempty"`
	SignatureVerified bool   `json:"signature_verified"`
}

func (*GatewayState) Method() Method { return MethodGateway }
func (*GatewayState) isMethodState() {}

// CODState tracks a cash-on-delivery payment.
type CODState struct {
	Confirmed bool `json:"confirmed"`
}

func (*CODState) Method() Method { return MethodCOD }
func (*CODState) isMethodState() {}

// WalletState tracks the prepaid-wallet flow: mobile verification, OTP
// challenge, balance check, and the final debit.
type WalletState struct {
	Mobile         string       `json:"mobile,omitempty"`
	MobileVerified bool         `json:"mobile_verified"`
	OTPHash        string       `json:"otp_hash,omitempty"`
	OTPExpiresAt   time.Time    `json:"otp_expires_at,omitzero"`
	OTPAttempts    int          `json:"otp_attempts"`
	BalanceChecked *money.Money `json:"balance_checked_amount,omitempty"`
	TransactionID  string       `json:"transaction_id,omitempty"`
}

func (*WalletState) Method() Method { return MethodWallet }
func (*WalletState) isMethodState() {}

// NewMethodState returns the zero sub-state for a method.
func NewMethodState(m Method) MethodState {
	switch m {
	case MethodGateway:
		return &GatewayState{}
	case MethodCOD:
		return &CODState{}
	case MethodWallet:
		return &WalletState{}
	}
	return nil
}

// methodStateEnvelope is the storage encoding of the tagged union.
type methodStateEnvelope struct {
	Method Method          `json:"method"`
	State  json.RawMessage `json:"state"`
}

// EncodeMethodState serializes a MethodState with its method discriminator
// for JSONB storage.
func EncodeMethodState(ms MethodState) ([]byte, error) {
	raw, err := json.Marshal(ms)
	if err != nil {
		return nil, errors.Wrap(err, "marshal method state")
	}
	return json.Marshal(methodStateEnvelope{Method: ms.Method(), State: raw})
}

// DecodeMethodState deserializes a MethodState previously produced by
// EncodeMethodState.
func DecodeMethodState(data []byte) (MethodState, error) {
	var env methodStateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "unmarshal method state envelope")
	}
	ms := NewMethodState(env.Method)
	if ms == nil {
		return nil, errors.Errorf("unknown payment method %q", env.Method)
	}
	if err := json.Unmarshal(env.State, ms); err != nil {
		return nil, errors.Wrap(err, "unmarshal method state")
	}
	return ms, nil
}

// Record is the payment aggregate root. It is created once per checkout
// attempt, mutated only by its method strategy and by the order
// materializer, and never deleted — only terminalized.
type Record struct {
	ID              string
	UserID          string
	Method          Method
	Status          Status
	Amount          money.Money
	Snapshot        cart.Snapshot
	ShippingAddress user.Address
	BillingAddress  user.Address
	State           MethodState
	OrderID         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Transition moves the record to a new status. Terminal states never
// transition again; disallowed edges are rejected with
// InvalidTransitionError rather than silently ignored.
func (r *Record) Transition(to Status, now time.Time) error {
	if !canTransition(r.Status, to) {
		return &InvalidTransitionError{From: r.Status, To: to}
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// Gateway returns the gateway sub-state, or a MethodMismatchError.
func (r *Record) Gateway() (*GatewayState, error) {
	st, ok := r.State.(*GatewayState)
	if !ok {
		return nil, &MethodMismatchError{Want: MethodGateway, Got: r.Method}
	}
	return st, nil
}

// COD returns the cash-on-delivery sub-state, or a MethodMismatchError.
func (r *Record) COD() (*CODState, error) {
	st, ok := r.State.(*CODState)
	if !ok {
		return nil, &MethodMismatchError{Want: MethodCOD, Got: r.Method}
	}
	return st, nil
}

// Wallet returns the wallet sub-state, or a MethodMismatchError.
func (r *Record) Wallet() (*WalletState, error) {
	st, ok := r.State.(*WalletState)
	if !ok {
		return nil, &MethodMismatchError{Want: MethodWallet, Got: r.Method}
	}
	return st, nil
}

// Clone returns a deep copy of the record. Storage implementations hand out
// clones so callers can never mutate persisted state outside Update.
func (r *Record) Clone() (*Record, error) {
	cp := *r
	data, err := EncodeMethodState(r.State)
	if err != nil {
		return nil, err
	}
	cp.State, err = DecodeMethodState(data)
	if err != nil {
		return nil, err
	}
	cp.Snapshot.Items = append([]cart.SnapshotItem(nil), r.Snapshot.Items...)
	return &cp, nil
}

// Repository provides persistence for payment records.
//
// Update is a row-locked read-modify-write: the implementation must
// guarantee single-writer-per-record semantics (a transaction holding a row
// lock, or an equivalent keyed mutex) so that two concurrent confirmation
// calls cannot both observe the same pre-transition state. fn receives the
// current record; when fn returns an error the record is left unchanged and
// the error is propagated. On success the mutated record is persisted and
// returned.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, fn func(*Record) error) (*Record, error)
	// ExpireBefore terminalizes created payments older than cutoff in a
	// single guarded statement and reports how many were expired.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int, error)
}
