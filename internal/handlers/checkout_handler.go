package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"fanpit/internal/services"
)

type CheckoutHandler struct {
	checkout  *services.Checkout
	purchaser *services.Purchaser
}

func NewCheckoutHandler(checkout *services.Checkout, purchaser *services.Purchaser) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, purchaser: purchaser}
}

// StartCheckout opens (or returns the existing) checkout session for an
// admitted user. The session id is the purchase idempotency key.
func (h *CheckoutHandler) StartCheckout(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		EventID string `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	session, err := h.checkout.StartCheckout(e.Request.Context(), req.EventID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"session_id": session.ID,
		"expires_at": session.ExpiresAt,
	})
}

// Purchase settles and completes an order against an open checkout
// session, issuing one ticket record per line item.
func (h *CheckoutHandler) Purchase(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		SessionID string              `json:"session_id"`
		Items     []services.LineItem `json:"items"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.SessionID == "" {
		return apis.NewBadRequestError("Session ID required", nil)
	}

	result, err := h.purchaser.Purchase(e.Request.Context(), req.SessionID, req.Items)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, result)
}
