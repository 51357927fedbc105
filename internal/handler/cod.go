package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CODConfirm confirms a cash-on-delivery payment and materializes the order.
func (h *Handler) CODConfirm(w http.ResponseWriter, r *http.Request) {
	rec, err := h.cod.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.finalize(w, r, rec)
}
