package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type walletMobileRequest struct {
	Mobile string `json:"mobile" validate:"required"`
}

// WalletVerifyMobile binds a verified mobile number to the payment.
func (h *Handler) WalletVerifyMobile(w http.ResponseWriter, r *http.Request) {
	var req walletMobileRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	rec, err := h.wallet.VerifyMobile(r.Context(), chi.URLParam(r, "id"), req.Mobile)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, paymentFromRecord(rec))
}

type walletOTPResponse struct {
	// Sent is always true on success; the code travels over the SMS channel,
	// never in this response.
	Sent bool `json:"sent"`
}

// WalletRequestOTP issues a fresh OTP for the payment's verified mobile and
// hands it to the SMS channel.
func (h *Handler) WalletRequestOTP(w http.ResponseWriter, r *http.Request) {
	rec, code, err := h.wallet.RequestOTP(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	st, err := rec.Wallet()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.otp.SendOTP(r.Context(), st.Mobile, code); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, walletOTPResponse{Sent: true})
}

type walletVerifyOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// WalletVerifyOTP checks the submitted OTP and records the wallet balance.
func (h *Handler) WalletVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req walletVerifyOTPRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	rec, err := h.wallet.VerifyOTP(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, paymentFromRecord(rec))
}

// WalletPay debits the wallet, marks the payment paid and materializes the
// order.
func (h *Handler) WalletPay(w http.ResponseWriter, r *http.Request) {
	rec, err := h.wallet.Pay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.finalize(w, r, rec)
}
