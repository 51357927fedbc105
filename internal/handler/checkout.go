package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bazarhq/fulfillment/internal/domain/payment"
)

type checkoutRequest struct {
	UserID          string      `json:"user_id" validate:"required"`
	Method          string      `json:"method" validate:"required,oneof=gateway cod wallet"`
	ShippingAddress addressDTO  `json:"shipping_address" validate:"required"`
	BillingAddress  *addressDTO `json:"billing_address,omitempty"`
}

// Checkout captures the user's cart and creates a payment record for the
// chosen method. The billing address defaults to the shipping address.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	rec, err := h.payments.Create(r.Context(), payment.CreateRequest{
		UserID:          req.UserID,
		Method:          payment.Method(req.Method),
		ShippingAddress: req.ShippingAddress.domain(),
		BillingAddress:  billing.domain(),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, paymentFromRecord(rec))
}

// GetPayment returns a payment record by id.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.payments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, paymentFromRecord(rec))
}

// GetOrder returns an order by id.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, orderFromDomain(o))
}
