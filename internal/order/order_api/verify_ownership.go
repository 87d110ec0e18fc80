package order_api

import (
	"fmt"
	"net/http"

	"ms-registration/internal/auth"
	"ms-registration/internal/models"
	"ms-registration/internal/scrambler"

	"github.com/go-chi/chi/v5"
)

// ownedOrder loads the order named in the URL. Orders belonging to someone
// else are reported as missing.
func (h *Handler) ownedOrder(r *http.Request) (*models.Order, error) {
	ref := chi.URLParam(r, "orderId")
	orderID, err := scrambler.Orders.Backward(ref)
	if err != nil {
		return nil, err
	}
	o, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	userID := auth.UserID(r.Context())
	if o.PurchaserID != userID {
		h.Logger.Warn("AUTH", fmt.Sprintf("User %s asked for order %s owned by %s", userID, ref, o.PurchaserID))
		return nil, fmt.Errorf("order %s: %w", ref, models.ErrNotFound)
	}
	return o, nil
}
