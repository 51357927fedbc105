package payment

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for payment processing.
var (
	// ErrNotFound is returned when a payment record does not exist.
	ErrNotFound = errors.New("payment not found")
	// ErrSignatureVerification indicates the gateway confirmation signature
	// did not match the locally recomputed one. Terminal: the user must
	// restart checkout.
	ErrSignatureVerification = errors.New("gateway signature verification failed")
	// ErrGatewayUnavailable indicates a timeout or transport failure talking
	// to the payment gateway. Transient: the call may be retried, no payment
	// state was mutated.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrWalletUnavailable indicates a timeout or transport failure talking
	// to the wallet service. Transient, like ErrGatewayUnavailable.
	ErrWalletUnavailable = errors.New("wallet service unavailable")
	// ErrInvalidMobile is returned when a wallet mobile number fails format
	// validation.
	ErrInvalidMobile = errors.New("invalid mobile number")
	// ErrOTPMismatch is returned for a wrong OTP while attempts remain.
	ErrOTPMismatch = errors.New("incorrect OTP")
	// ErrOTPExpired is returned when the OTP outlived its validity window.
	// The payment is failed terminally.
	ErrOTPExpired = errors.New("OTP expired")
	// ErrOTPExhausted is returned when the wrong-attempt limit is reached.
	// The payment is failed terminally.
	ErrOTPExhausted = errors.New("OTP attempts exhausted")
	// ErrInsufficientBalance is returned when the wallet balance cannot
	// cover the payment amount. Terminal: a fresh checkout is required.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
)

// InvalidTransitionError is returned when a status transition is attempted
// that the state machine does not allow, including any transition out of a
// terminal state. Duplicate client retries hit this instead of being
// silently swallowed.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid payment transition %s -> %s", e.From, e.To)
}

// PreconditionError is returned when a wallet step is invoked before its
// prerequisite steps have completed.
type PreconditionError struct {
	Step    string
	Missing string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires %s first", e.Step, e.Missing)
}

// MethodMismatchError is returned when a strategy is invoked on a payment
// created for a different method.
type MethodMismatchError struct {
	Want Method
	Got  Method
}

func (e *MethodMismatchError) Error() string {
	return fmt.Sprintf("payment method is %s, not %s", e.Got, e.Want)
}

// OrphanedDebitError is returned when a wallet debit succeeded but the
// payment had turned terminal in the meantime (for example the expiry sweeper
// fired mid-debit). Money has moved; the transaction id is kept on the record
// and the error is escalated for manual reconciliation instead of being
// discarded.
type OrphanedDebitError struct {
	PaymentID     string
	TransactionID string
	Status        Status
}

func (e *OrphanedDebitError) Error() string {
	return fmt.Sprintf("wallet debit %s completed for %s payment %s",
		e.TransactionID, e.Status, e.PaymentID)
}

// Class buckets an error for propagation policy: validation errors are
// retryable by the caller with corrected input, verification failures are
// terminal for the payment, transient errors may be retried as-is, and
// invariant violations are escalated as internal bugs.
type Class int

const (
	// ClassInternal is the default for unclassified errors.
	ClassInternal Class = iota
	// ClassValidation covers synchronous input rejection; payment state is
	// unaffected.
	ClassValidation
	// ClassVerification covers bad OTPs, bad signatures and insufficient
	// balance; the payment is (or becomes) terminally failed.
	ClassVerification
	// ClassTransient covers external timeouts; safe to retry.
	ClassTransient
	// ClassConflict covers transitions rejected by the state machine and
	// unmet step preconditions.
	ClassConflict
)

// Classify maps an error to its propagation class.
func Classify(err error) Class {
	var (
		transErr *InvalidTransitionError
		preErr   *PreconditionError
		methErr  *MethodMismatchError
	)
	switch {
	case errors.Is(err, ErrInvalidMobile):
		return ClassValidation
	case errors.Is(err, ErrSignatureVerification),
		errors.Is(err, ErrOTPMismatch),
		errors.Is(err, ErrOTPExpired),
		errors.Is(err, ErrOTPExhausted),
		errors.Is(err, ErrInsufficientBalance):
		return ClassVerification
	case errors.Is(err, ErrGatewayUnavailable), errors.Is(err, ErrWalletUnavailable):
		return ClassTransient
	case errors.As(err, &transErr), errors.As(err, &preErr), errors.As(err, &methErr):
		return ClassConflict
	default:
		return ClassInternal
	}
}
