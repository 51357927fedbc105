package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/money"
	"github.com/bazarhq/fulfillment/internal/domain/order"
	"github.com/bazarhq/fulfillment/internal/domain/payment"
	"github.com/bazarhq/fulfillment/internal/domain/user"
	"github.com/bazarhq/fulfillment/internal/notify"
	"github.com/bazarhq/fulfillment/internal/storage/memory"
)

// --- Mock collaborators ---

type mockCatalog struct {
	prices map[string]money.Money
	err    error
}

func (m *mockCatalog) GetPrice(_ context.Context, productID, _ string) (money.Money, error) {
	if m.err != nil {
		return money.Money{}, m.err
	}
	p, ok := m.prices[productID]
	if !ok {
		return money.Money{}, errors.Errorf("no price for %s", productID)
	}
	return p, nil
}

func (m *mockCatalog) GetStock(_ context.Context, _, _ string) (int, error) {
	return 100, nil
}

type mockDirectory struct{}

func (mockDirectory) GetUser(_ context.Context, id string) (*user.User, error) {
	return &user.User{ID: id}, nil
}

func (mockDirectory) UpsertAddress(context.Context, string, user.Address) error {
	return nil
}

type mockGatewayClient struct {
	orderID string
	err     error
}

func (m *mockGatewayClient) CreateRemoteOrder(context.Context, money.Money) (string, error) {
	return m.orderID, m.err
}

type mockWalletClient struct {
	balance money.Money
	txnID   string
}

func (m *mockWalletClient) CheckBalance(context.Context, string) (money.Money, error) {
	return m.balance, nil
}

func (m *mockWalletClient) Debit(context.Context, string, money.Money) (string, error) {
	return m.txnID, nil
}

type mockOTPSender struct {
	mobile string
	code   string
	err    error
}

func (m *mockOTPSender) SendOTP(_ context.Context, mobile, code string) error {
	if m.err != nil {
		return m.err
	}
	m.mobile = mobile
	m.code = code
	return nil
}

// --- Fixture ---

const testSecret = "test-gateway-secret"

type fixture struct {
	srv     *httptest.Server
	carts   *memory.CartRepository
	catalog *mockCatalog
	wallet  *mockWalletClient
	otp     *mockOTPSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	payments := memory.NewPaymentRepository()
	orders := memory.NewOrderRepository()
	carts := memory.NewCartRepository()

	catalog := &mockCatalog{prices: map[string]money.Money{
		"p1": inr(15000),
		"p2": inr(3845),
	}}
	capturer := cart.NewCapturer(catalog,
		cart.CapturerConfig{Currency: "INR", TaxRateBP: 1000, ShippingFee: 5000},
	)

	walletClient := &mockWalletClient{balance: inr(100000), txnID: "txn_1"}
	otp := &mockOTPSender{}

	h := NewHandler(
		payment.NewService(payments, carts, capturer, mockDirectory{}, zap.NewNop()),
		payment.NewGatewayStrategy(payments, &mockGatewayClient{orderID: "rzp_order_1"}, []byte(testSecret)),
		payment.NewCODStrategy(payments),
		payment.NewWalletStrategy(payments, walletClient),
		order.NewMaterializer(payments, orders, cart.NewReconciler(carts), notify.Nop{}, zap.NewNop()),
		orders,
		otp,
	)

	router := chi.NewRouter()
	h.Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, carts: carts, catalog: catalog, wallet: walletClient, otp: otp}
}

func inr(minor int64) money.Money { return money.New(minor, "INR") }

func (f *fixture) seedCart(userID string) {
	f.carts.Put(&cart.Cart{
		UserID: userID,
		Items: []cart.Item{
			{ProductID: "p1", UnitPrice: inr(15000), Quantity: 1},
			{ProductID: "p2", UnitPrice: inr(3845), Quantity: 2},
		},
	})
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *fixture) checkout(t *testing.T, method string) paymentResponse {
	t.Helper()
	var rec paymentResponse
	resp := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"user_id": "u1",
		"method":  method,
		"shipping_address": map[string]any{
			"line1":       "42 MG Road",
			"city":        "Bengaluru",
			"state":       "KA",
			"postal_code": "560001",
			"country":     "IN",
		},
	}, &rec)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return rec
}

// --- Tests ---

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")

	rec := f.checkout(t, "gateway")
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "created", rec.Status)
	// 226.90 + 22.69 tax + 50.00 shipping
	assert.Equal(t, moneyDTO{Amount: "299.59", Currency: "INR"}, rec.Amount)
	assert.Len(t, rec.Snapshot.Items, 2)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)

	var errResp errorResponse
	resp := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"user_id": "u1",
		"method":  "cod",
		"shipping_address": map[string]any{
			"line1": "42 MG Road", "city": "Bengaluru", "state": "KA",
			"postal_code": "560001", "country": "IN",
		},
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, http.StatusBadRequest, errResp.Code)
}

func TestCheckout_CatalogUnavailable(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")
	f.catalog.err = cart.ErrCatalogUnavailable

	var errResp errorResponse
	resp := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"user_id": "u1",
		"method":  "cod",
		"shipping_address": map[string]any{
			"line1": "42 MG Road", "city": "Bengaluru", "state": "KA",
			"postal_code": "560001", "country": "IN",
		},
	}, &errResp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCheckout_MissingAddress(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")

	resp := f.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"user_id": "u1",
		"method":  "cod",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGatewayFlow(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")
	rec := f.checkout(t, "gateway")

	var initiated paymentResponse
	resp := f.do(t, http.MethodPost, "/api/payments/"+rec.ID+"/gateway/initiate", nil, &initiated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rzp_order_1", initiated.State.GatewayOrderID)
	assert.Equal(t, "created", initiated.Status)

	sig := payment.SignGatewayConfirmation("rzp_order_1", "rzp_pay_1", []byte(testSecret))
	var confirmed confirmResponse
	resp = f.do(t, http.MethodPost, "/api/payments/"+rec.ID+"/gateway/confirm", map[string]any{
		"gateway_payment_id": "rzp_pay_1",
		"signature":          sig,
	}, &confirmed)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "order_created", confirmed.Payment.Status)
	assert.Equal(t, rec.ID, confirmed.Order.PaymentID)
	assert.Equal(t, "paid", confirmed.Order.PaymentStatus)
	assert.NotEmpty(t, confirmed.Order.Number)

	// A duplicate confirm returns the same order.
	var again confirmResponse
	resp = f.do(t, http.MethodPost, "/api/payments/"+rec.ID+"/gateway/confirm", map[string]any{
		"gateway_payment_id": "rzp_pay_1",
		"signature":          sig,
	}, &again)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, confirmed.Order.ID, again.Order.ID)
}

func TestGatewayConfirm_BadSignature(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")
	rec := f.checkout(t, "gateway")

	resp := f.do(t, http.MethodPost, "/api/payments/"+rec.ID+"/gateway/initiate", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var errResp errorResponse
	resp = f.do(t, http.MethodPost, "/api/payments/"+rec.ID+"/gateway/confirm", map[string]any{
		"gateway_payment_id": "rzp_pay_1",
		"signature":          "deadbeef",
	}, &errResp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var failed paymentResponse
	resp = f.do(t, http.MethodGet, "/api/payments/"+rec.ID, nil, &failed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", failed.Status)
}

func TestCODFlow(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")
	rec := f.checkout(t, "cod")

	var confirmed confirmResponse
	resp := f.do(t, http.MethodPost, "/api/payments/"+rec.ID+"/cod/confirm", nil, &confirmed)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "order_created", confirmed.Payment.Status)
	// Cash is collected at the door; the order starts payment-pending.
	assert.Equal(t, "pending", confirmed.Order.PaymentStatus)

	var fetched orderResponse
	resp = f.do(t, http.MethodGet, "/api/orders/"+confirmed.Order.ID, nil, &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, confirmed.Order.Number, fetched.Number)
}

func TestWalletFlow(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")
	rec := f.checkout(t, "wallet")
	base := "/api/payments/" + rec.ID + "/wallet"

	resp := f.do(t, http.MethodPost, base+"/mobile", map[string]any{"mobile": "9876543210"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var otpResp walletOTPResponse
	resp = f.do(t, http.MethodPost, base+"/otp", nil, &otpResp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, otpResp.Sent)
	require.Len(t, f.otp.code, 6, "the OTP travels over SMS")
	assert.Equal(t, "9876543210", f.otp.mobile)

	var verified paymentResponse
	resp = f.do(t, http.MethodPost, base+"/otp/verify", map[string]any{"code": f.otp.code}, &verified)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, verified.State.BalanceChecked)

	var confirmed confirmResponse
	resp = f.do(t, http.MethodPost, base+"/pay", nil, &confirmed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "order_created", confirmed.Payment.Status)
	assert.Equal(t, "paid", confirmed.Order.PaymentStatus)
	assert.Equal(t, "txn_1", confirmed.Payment.State.TransactionID)
}

func TestWalletFlow_OutOfOrder(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")
	rec := f.checkout(t, "wallet")

	var errResp errorResponse
	resp := f.do(t, http.MethodPost, "/api/payments/"+rec.ID+"/wallet/pay", nil, &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWalletPay_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")
	rec := f.checkout(t, "wallet")
	f.wallet.balance = inr(100)
	base := "/api/payments/" + rec.ID + "/wallet"

	resp := f.do(t, http.MethodPost, base+"/mobile", map[string]any{"mobile": "9876543210"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodPost, base+"/otp", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodPost, base+"/otp/verify", map[string]any{"code": f.otp.code}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var errResp errorResponse
	resp = f.do(t, http.MethodPost, base+"/pay", nil, &errResp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var failed paymentResponse
	resp = f.do(t, http.MethodGet, "/api/payments/"+rec.ID, nil, &failed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", failed.Status)
}

func TestGetPayment_NotFound(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/payments/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMethodMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedCart("u1")
	rec := f.checkout(t, "cod")

	resp := f.do(t, http.MethodPost, "/api/payments/"+rec.ID+"/gateway/initiate", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
