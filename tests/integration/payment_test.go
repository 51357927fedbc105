//go:build integration

package integration

import (
	"net/http"
	"testing"
)

// The compose environment points the catalog, gateway and wallet at
// unresolvable hosts, so these tests exercise the surface that does not
// depend on remote collaborators plus the degraded-mode behavior when they
// are down.

func TestCheckout_EmptyCart(t *testing.T) {
	resp := doPost(t, "/api/checkout", checkoutRequest{
		UserID:          "u_nobody",
		Method:          "cod",
		ShippingAddress: testAddress(),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Code != http.StatusBadRequest {
		t.Errorf("error code: got %d, want %d", body.Code, http.StatusBadRequest)
	}
}

func TestCheckout_MissingAddress(t *testing.T) {
	resp := doPost(t, "/api/checkout", checkoutRequest{
		UserID: "u_demo_1",
		Method: "cod",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCheckout_UnknownMethod(t *testing.T) {
	resp := doPost(t, "/api/checkout", checkoutRequest{
		UserID:          "u_demo_1",
		Method:          "barter",
		ShippingAddress: testAddress(),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCheckout_CatalogDown(t *testing.T) {
	// u_demo_1 has a seeded cart, but price capture cannot reach the catalog.
	resp := doPost(t, "/api/checkout", checkoutRequest{
		UserID:          "u_demo_1",
		Method:          "cod",
		ShippingAddress: testAddress(),
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestGetPayment_NotFound(t *testing.T) {
	resp := doGet(t, "/api/payments/does-not-exist")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	resp := doGet(t, "/api/orders/does-not-exist")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
