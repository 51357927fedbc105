package payment

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/go-faster/errors"

	"github.com/bazarhq/fulfillment/internal/domain/money"
)

// WalletClient is the external prepaid-wallet collaborator. Implementations
// must bound their calls with timeouts; transport failures and timeouts are
// reported as ErrWalletUnavailable.
type WalletClient interface {
	CheckBalance(ctx context.Context, mobile string) (money.Money, error)
	Debit(ctx context.Context, mobile string, amount money.Money) (transactionID string, err error)
}

const (
	otpDigits      = 6
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 3
)

// mobilePattern matches a ten digit Indian mobile number starting 6-9.
var mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)

// WalletStrategy drives the prepaid-wallet flow. The steps are strictly
// ordered (mobile verification, then OTP challenge, then balance check, then
// debit) and the state machine rejects out-of-order calls with
// PreconditionError.
type WalletStrategy struct {
	payments Repository
	client   WalletClient
	now      func() time.Time
	// newOTP generates a fresh one-time password. Overridable in tests.
	newOTP func() (string, error)
}

// NewWalletStrategy creates a WalletStrategy.
func NewWalletStrategy(payments Repository, client WalletClient) *WalletStrategy {
	return &WalletStrategy{
		payments: payments,
		client:   client,
		now:      time.Now,
		newOTP:   generateOTP,
	}
}

// VerifyMobile validates the mobile number format and binds it to the
// payment. It is the entry step of the wallet flow.
func (w *WalletStrategy) VerifyMobile(ctx context.Context, paymentID, mobile string) (*Record, error) {
	if !mobilePattern.MatchString(mobile) {
		return nil, errors.Wrapf(ErrInvalidMobile, "%q", mobile)
	}
	return w.payments.Update(ctx, paymentID, func(r *Record) error {
		st, err := r.Wallet()
		if err != nil {
			return err
		}
		if r.Status != StatusCreated {
			return &InvalidTransitionError{From: r.Status, To: StatusPaid}
		}
		st.Mobile = mobile
		st.MobileVerified = true
		r.UpdatedAt = w.now()
		return nil
	})
}

// RequestOTP generates a one-time password for the payment's verified
// mobile, stores its hash with a fresh expiry, and resets the attempt
// counter. The plaintext code is returned to the caller for delivery via the
// SMS collaborator; only its hash is ever persisted.
func (w *WalletStrategy) RequestOTP(ctx context.Context, paymentID string) (*Record, string, error) {
	code, err := w.newOTP()
	if err != nil {
		return nil, "", errors.Wrap(err, "generate OTP")
	}

	rec, err := w.payments.Update(ctx, paymentID, func(r *Record) error {
		st, err := r.Wallet()
		if err != nil {
			return err
		}
		if r.Status != StatusCreated {
			return &InvalidTransitionError{From: r.Status, To: StatusPaid}
		}
		if !st.MobileVerified {
			return &PreconditionError{Step: "request_otp", Missing: "verify_mobile"}
		}
		st.OTPHash = hashOTP(code)
		st.OTPExpiresAt = w.now().Add(otpTTL)
		st.OTPAttempts = 0
		r.UpdatedAt = w.now()
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return rec, code, nil
}

// VerifyOTP checks the submitted code against the stored hash. A wrong code
// consumes an attempt; the third wrong attempt fails the payment with
// ErrOTPExhausted, and a code submitted after the validity window fails it
// with ErrOTPExpired. On a correct code the wallet balance is looked up and
// recorded for the subsequent Pay step. The attempt counter is only ever
// mutated under the record's row lock, so concurrent guesses cannot exceed
// the limit.
func (w *WalletStrategy) VerifyOTP(ctx context.Context, paymentID, code string) (*Record, error) {
	var verifyErr error
	rec, err := w.payments.Update(ctx, paymentID, func(r *Record) error {
		st, err := r.Wallet()
		if err != nil {
			return err
		}
		if r.Status != StatusCreated {
			return &InvalidTransitionError{From: r.Status, To: StatusPaid}
		}
		if !st.MobileVerified || st.OTPHash == "" {
			return &PreconditionError{Step: "verify_otp", Missing: "request_otp"}
		}
		if w.now().After(st.OTPExpiresAt) {
			verifyErr = ErrOTPExpired
			return r.Transition(StatusFailed, w.now())
		}
		if subtle.ConstantTimeCompare([]byte(hashOTP(code)), []byte(st.OTPHash)) != 1 {
			st.OTPAttempts++
			r.UpdatedAt = w.now()
			if st.OTPAttempts >= otpMaxAttempts {
				verifyErr = ErrOTPExhausted
				return r.Transition(StatusFailed, w.now())
			}
			verifyErr = ErrOTPMismatch
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if verifyErr != nil {
		return rec, verifyErr
	}

	st, err := rec.Wallet()
	if err != nil {
		return nil, err
	}
	balance, err := w.client.CheckBalance(ctx, st.Mobile)
	if err != nil {
		// The OTP stays valid; the whole call is retryable.
		return nil, errors.Wrap(err, "check balance")
	}

	return w.payments.Update(ctx, paymentID, func(r *Record) error {
		st, err := r.Wallet()
		if err != nil {
			return err
		}
		if r.Status != StatusCreated {
			return &InvalidTransitionError{From: r.Status, To: StatusPaid}
		}
		// Guard against an OTP rotated between the two updates.
		if subtle.ConstantTimeCompare([]byte(hashOTP(code)), []byte(st.OTPHash)) != 1 {
			return &PreconditionError{Step: "verify_otp", Missing: "request_otp"}
		}
		st.BalanceChecked = &balance
		st.OTPHash = ""
		st.OTPExpiresAt = time.Time{}
		st.OTPAttempts = 0
		r.UpdatedAt = w.now()
		return nil
	})
}

// Pay debits the wallet and marks the payment paid. It requires a completed
// balance check covering the payment amount; an insufficient balance fails
// the payment terminally with ErrInsufficientBalance and no debit is
// attempted. The comparison is integer Money arithmetic throughout.
func (w *WalletStrategy) Pay(ctx context.Context, paymentID string) (*Record, error) {
	var payErr error
	rec, err := w.payments.Update(ctx, paymentID, func(r *Record) error {
		st, err := r.Wallet()
		if err != nil {
			return err
		}
		switch r.Status {
		case StatusPaid, StatusOrderCreated:
			return nil
		case StatusFailed, StatusExpired:
			return &InvalidTransitionError{From: r.Status, To: StatusPaid}
		}
		if st.BalanceChecked == nil {
			return &PreconditionError{Step: "pay", Missing: "verify_otp"}
		}
		cmp, err := st.BalanceChecked.Cmp(r.Amount)
		if err != nil {
			return errors.Wrap(err, "compare balance")
		}
		if cmp < 0 {
			payErr = ErrInsufficientBalance
			return r.Transition(StatusFailed, w.now())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if payErr != nil {
		return rec, payErr
	}
	if rec.Status == StatusPaid || rec.Status == StatusOrderCreated {
		return rec, nil
	}

	st, err := rec.Wallet()
	if err != nil {
		return nil, err
	}
	txnID, err := w.client.Debit(ctx, st.Mobile, rec.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "debit wallet")
	}

	var orphaned *OrphanedDebitError
	rec, err = w.payments.Update(ctx, paymentID, func(r *Record) error {
		st, err := r.Wallet()
		if err != nil {
			return err
		}
		if r.Status == StatusPaid || r.Status == StatusOrderCreated {
			return nil
		}
		// Money has moved; the transaction id must survive even if the
		// record turned terminal (sweeper expiry) while the debit was in
		// flight.
		st.TransactionID = txnID
		if r.Status.Terminal() {
			orphaned = &OrphanedDebitError{
				PaymentID:     r.ID,
				TransactionID: txnID,
				Status:        r.Status,
			}
			r.UpdatedAt = w.now()
			return nil
		}
		return r.Transition(StatusPaid, w.now())
	})
	if err != nil {
		return nil, err
	}
	if orphaned != nil {
		return rec, orphaned
	}
	return rec, nil
}

// hashOTP returns the hex SHA-256 digest of an OTP code. Plaintext codes are
// never stored.
func hashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// generateOTP produces a uniformly random numeric code of otpDigits digits
// using crypto/rand.
func generateOTP() (string, error) {
	bound := big.NewInt(1)
	for range otpDigits {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
