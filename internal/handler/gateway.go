package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GatewayInitiate creates the remote gateway order for the payment.
func (h *Handler) GatewayInitiate(w http.ResponseWriter, r *http.Request) {
	rec, err := h.gateway.Initiate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, paymentFromRecord(rec))
}

type gatewayConfirmRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

// GatewayConfirm verifies the gateway signature, marks the payment paid and
// materializes the order. Both the client redirect and the gateway webhook
// call this; whichever arrives second gets the same response.
func (h *Handler) GatewayConfirm(w http.ResponseWriter, r *http.Request) {
	var req gatewayConfirmRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	rec, err := h.gateway.Confirm(r.Context(), chi.URLParam(r, "id"), req.GatewayPaymentID, req.Signature)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.finalize(w, r, rec)
}
