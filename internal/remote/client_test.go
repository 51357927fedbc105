package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazarhq/fulfillment/internal/domain/money"
	"github.com/bazarhq/fulfillment/internal/domain/payment"
)

func TestGatewayCreateRemoteOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"rzp_order_1"}`))
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, time.Second)
	id, err := g.CreateRemoteOrder(context.Background(), money.New(30390, "INR"))
	require.NoError(t, err)
	assert.Equal(t, "rzp_order_1", id)
}

func TestGatewayCreateRemoteOrder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, time.Second)
	_, err := g.CreateRemoteOrder(context.Background(), money.New(30390, "INR"))
	require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, time.Second)
	ctx := context.Background()
	for range 7 {
		_, err := g.CreateRemoteOrder(ctx, money.New(100, "INR"))
		require.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	}

	// The breaker opened after the fifth failure; later calls never reach
	// the wire.
	assert.Equal(t, 5, hits)
}

func TestClientBadRequestDoesNotTripBreaker(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		http.Error(w, "bad amount", http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, time.Second)
	ctx := context.Background()
	for range 8 {
		_, err := g.CreateRemoteOrder(ctx, money.New(100, "INR"))
		var stErr *StatusError
		require.ErrorAs(t, err, &stErr)
		assert.Equal(t, http.StatusBadRequest, stErr.Code)
	}
	assert.Equal(t, 8, hits, "4xx responses keep flowing to the wire")
}

func TestWalletCheckBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/9876543210/balance", r.URL.Path)
		_, _ = w.Write([]byte(`{"balance":"420.10","currency":"INR"}`))
	}))
	defer srv.Close()

	wl := NewWallet(srv.URL, time.Second)
	balance, err := wl.CheckBalance(context.Background(), "9876543210")
	require.NoError(t, err)
	assert.Equal(t, money.New(42010, "INR"), balance)
}

func TestWalletDebit_InsufficientBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "insufficient balance", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	wl := NewWallet(srv.URL, time.Second)
	_, err := wl.Debit(context.Background(), "9876543210", money.New(88190, "INR"))
	require.ErrorIs(t, err, payment.ErrInsufficientBalance)
}

func TestWalletTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"balance":"1.00","currency":"INR"}`))
	}))
	defer srv.Close()

	wl := NewWallet(srv.URL, 20*time.Millisecond)
	_, err := wl.CheckBalance(context.Background(), "9876543210")
	require.ErrorIs(t, err, payment.ErrWalletUnavailable)
}

func TestCatalogGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/products/p1/variants/red/price", r.URL.Path)
		_, _ = w.Write([]byte(`{"price":"150.00","currency":"INR"}`))
	}))
	defer srv.Close()

	cat := NewCatalog(srv.URL, time.Second)
	price, err := cat.GetPrice(context.Background(), "p1", "red")
	require.NoError(t, err)
	assert.Equal(t, money.New(15000, "INR"), price)
}
