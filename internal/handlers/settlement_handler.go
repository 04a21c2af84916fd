package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"fanpit/internal/services/settlement"
)

// SettlementHandler receives the provider's HTTP callbacks for orders
// whose channel notification was missed. The caller proves itself with
// the shared webhook secret; the notification body still carries its
// own HMAC signature.
type SettlementHandler struct {
	gateway    *settlement.Gateway
	secretHash string
}

func NewSettlementHandler(gateway *settlement.Gateway, secretHash string) *SettlementHandler {
	return &SettlementHandler{gateway: gateway, secretHash: secretHash}
}

func (h *SettlementHandler) Webhook(e *core.RequestEvent) error {
	if h.secretHash == "" {
		return apis.NewForbiddenError("Webhook disabled", nil)
	}
	if !settlement.VerifyWebhookSecret(h.secretHash, e.Request.Header.Get("X-Webhook-Secret")) {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var n settlement.Notification
	if err := e.BindBody(&n); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if !h.gateway.HandleNotification(&n) {
		return apis.NewBadRequestError("Notification rejected", nil)
	}

	return e.JSON(http.StatusOK, map[string]bool{"ok": true})
}
