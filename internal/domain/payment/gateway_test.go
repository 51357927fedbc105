package payment

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazarhq/fulfillment/internal/domain/money"
)

type mockGatewayClient struct {
	orderID string
	err     error
	calls   int
}

func (m *mockGatewayClient) CreateRemoteOrder(_ context.Context, _ money.Money) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.orderID, nil
}

var testSecret = []byte("test-gateway-secret")

func newGatewayFixture(t *testing.T, client *mockGatewayClient) (*GatewayStrategy, *fakeRepo, *Record) {
	t.Helper()
	repo := newFakeRepo()
	rec := newTestRecord(t, repo, MethodGateway)
	return NewGatewayStrategy(repo, client, testSecret), repo, rec
}

func TestGatewayInitiate(t *testing.T) {
	client := &mockGatewayClient{orderID: "rzp_order_1"}
	g, _, rec := newGatewayFixture(t, client)
	ctx := context.Background()

	got, err := g.Initiate(ctx, rec.ID)
	require.NoError(t, err)

	st, err := got.Gateway()
	require.NoError(t, err)
	assert.Equal(t, "rzp_order_1", st.GatewayOrderID)
	assert.Equal(t, StatusCreated, got.Status, "initiate must not advance the status")

	// A retry keeps the first remote order and does not call the gateway again.
	got, err = g.Initiate(ctx, rec.ID)
	require.NoError(t, err)
	st, err = got.Gateway()
	require.NoError(t, err)
	assert.Equal(t, "rzp_order_1", st.GatewayOrderID)
	assert.Equal(t, 1, client.calls)
}

func TestGatewayInitiate_GatewayDown(t *testing.T) {
	client := &mockGatewayClient{err: errors.Wrap(ErrGatewayUnavailable, "dial tcp: timeout")}
	g, repo, rec := newGatewayFixture(t, client)
	ctx := context.Background()

	_, err := g.Initiate(ctx, rec.ID)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, ClassTransient, Classify(err))

	// The record is untouched and a later retry succeeds.
	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, stored.Status)

	client.err = nil
	client.orderID = "rzp_order_2"
	got, err := g.Initiate(ctx, rec.ID)
	require.NoError(t, err)
	st, err := got.Gateway()
	require.NoError(t, err)
	assert.Equal(t, "rzp_order_2", st.GatewayOrderID)
}

func TestGatewayConfirm(t *testing.T) {
	client := &mockGatewayClient{orderID: "rzp_order_1"}
	g, _, rec := newGatewayFixture(t, client)
	ctx := context.Background()

	_, err := g.Initiate(ctx, rec.ID)
	require.NoError(t, err)

	sig := SignGatewayConfirmation("rzp_order_1", "rzp_pay_1", testSecret)
	got, err := g.Confirm(ctx, rec.ID, "rzp_pay_1", sig)
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, got.Status)
	st, err := got.Gateway()
	require.NoError(t, err)
	assert.True(t, st.SignatureVerified)
	assert.Equal(t, "rzp_pay_1", st.GatewayPaymentID)
}

func TestGatewayConfirm_BadSignature(t *testing.T) {
	client := &mockGatewayClient{orderID: "rzp_order_1"}
	g, repo, rec := newGatewayFixture(t, client)
	ctx := context.Background()

	_, err := g.Initiate(ctx, rec.ID)
	require.NoError(t, err)

	_, err = g.Confirm(ctx, rec.ID, "rzp_pay_1", "deadbeef")
	require.ErrorIs(t, err, ErrSignatureVerification)
	assert.Equal(t, ClassVerification, Classify(err))

	// The failure is terminal and persisted.
	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	st, err := stored.Gateway()
	require.NoError(t, err)
	assert.False(t, st.SignatureVerified)

	// A valid signature arriving afterwards cannot revive the payment.
	sig := SignGatewayConfirmation("rzp_order_1", "rzp_pay_1", testSecret)
	_, err = g.Confirm(ctx, rec.ID, "rzp_pay_1", sig)
	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
}

func TestGatewayConfirm_Idempotent(t *testing.T) {
	client := &mockGatewayClient{orderID: "rzp_order_1"}
	g, _, rec := newGatewayFixture(t, client)
	ctx := context.Background()

	_, err := g.Initiate(ctx, rec.ID)
	require.NoError(t, err)

	sig := SignGatewayConfirmation("rzp_order_1", "rzp_pay_1", testSecret)
	first, err := g.Confirm(ctx, rec.ID, "rzp_pay_1", sig)
	require.NoError(t, err)

	// The duplicate webhook is a harmless no-op.
	second, err := g.Confirm(ctx, rec.ID, "rzp_pay_1", sig)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, second.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestGatewayConfirm_BeforeInitiate(t *testing.T) {
	client := &mockGatewayClient{orderID: "rzp_order_1"}
	g, _, rec := newGatewayFixture(t, client)

	sig := SignGatewayConfirmation("", "rzp_pay_1", testSecret)
	_, err := g.Confirm(context.Background(), rec.ID, "rzp_pay_1", sig)

	var pcErr *PreconditionError
	require.ErrorAs(t, err, &pcErr)
	assert.Equal(t, "initiate", pcErr.Missing)
}

func TestGatewayConfirm_WrongMethod(t *testing.T) {
	repo := newFakeRepo()
	rec := newTestRecord(t, repo, MethodWallet)
	g := NewGatewayStrategy(repo, &mockGatewayClient{}, testSecret)

	_, err := g.Confirm(context.Background(), rec.ID, "rzp_pay_1", "sig")
	var mmErr *MethodMismatchError
	require.ErrorAs(t, err, &mmErr)
}

func TestGatewayExpiredPayment(t *testing.T) {
	client := &mockGatewayClient{orderID: "rzp_order_1"}
	g, repo, rec := newGatewayFixture(t, client)
	ctx := context.Background()

	_, err := repo.Update(ctx, rec.ID, func(r *Record) error {
		return r.Transition(StatusExpired, time.Now())
	})
	require.NoError(t, err)

	_, err = g.Initiate(ctx, rec.ID)
	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusExpired, trErr.From)
}
