// Package handler exposes the checkout and payment flows over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/order"
	"github.com/bazarhq/fulfillment/internal/domain/payment"
)

// OTPSender delivers one-time passwords out of band, over SMS.
type OTPSender interface {
	SendOTP(ctx context.Context, mobile, code string) error
}

// Handler serves the payment and order API. Confirmation endpoints drive the
// method strategy first and hand the paid record to the materializer, so a
// successful confirmation response always carries the created order.
type Handler struct {
	payments     *payment.Service
	gateway      *payment.GatewayStrategy
	cod          *payment.CODStrategy
	wallet       *payment.WalletStrategy
	materializer *order.Materializer
	orders       order.Repository
	otp          OTPSender
	validate     *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	payments *payment.Service,
	gateway *payment.GatewayStrategy,
	cod *payment.CODStrategy,
	wallet *payment.WalletStrategy,
	materializer *order.Materializer,
	orders order.Repository,
	otp OTPSender,
) *Handler {
	return &Handler{
		payments:     payments,
		gateway:      gateway,
		cod:          cod,
		wallet:       wallet,
		materializer: materializer,
		orders:       orders,
		otp:          otp,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts all API routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/checkout", h.Checkout)
		r.Route("/payments/{id}", func(r chi.Router) {
			r.Get("/", h.GetPayment)
			r.Post("/gateway/initiate", h.GatewayInitiate)
			r.Post("/gateway/confirm", h.GatewayConfirm)
			r.Post("/cod/confirm", h.CODConfirm)
			r.Post("/wallet/mobile", h.WalletVerifyMobile)
			r.Post("/wallet/otp", h.WalletRequestOTP)
			r.Post("/wallet/otp/verify", h.WalletVerifyOTP)
			r.Post("/wallet/pay", h.WalletPay)
		})
		r.Get("/orders/{id}", h.GetOrder)
	})
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// decode parses the JSON request body into dst and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return errors.Wrap(err, "validate request")
	}
	return nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

// respondError maps a domain error to an HTTP status.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := h.errorStatus(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("internal error", zap.Error(err))
		// Never leak internals.
		h.respond(w, r, status, errorResponse{Code: status, Message: "internal error"})
		return
	}
	h.respond(w, r, status, errorResponse{Code: status, Message: err.Error()})
}

func (h *Handler) errorStatus(err error) int {
	var (
		valErr   validator.ValidationErrors
		priceErr *cart.PriceMismatchError
	)
	switch {
	case errors.Is(err, payment.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrEmptyCart),
		errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.As(err, &priceErr):
		// The cart is stale; the client must re-render and retry checkout.
		return http.StatusConflict
	case errors.Is(err, cart.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	}

	switch payment.Classify(err) {
	case payment.ClassValidation:
		return http.StatusBadRequest
	case payment.ClassVerification:
		return http.StatusUnprocessableEntity
	case payment.ClassConflict:
		return http.StatusConflict
	case payment.ClassTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// finalize materializes the order for a paid record and writes the combined
// confirmation response. Verification failures reach this function with a nil
// error already handled by the caller.
func (h *Handler) finalize(w http.ResponseWriter, r *http.Request, rec *payment.Record) {
	o, err := h.materializer.Materialize(r.Context(), rec.ID)
	if err != nil {
		// The payment stays paid; the client can retry and find the order.
		h.respondError(w, r, err)
		return
	}
	// Re-read so the response reflects order_created.
	rec, err = h.payments.Get(r.Context(), rec.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, confirmResponse{
		Payment: paymentFromRecord(rec),
		Order:   orderFromDomain(o),
	})
}
