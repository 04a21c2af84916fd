// Package handlers exposes the queue, checkout, and admin operations
// over the app's HTTP router.
package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"

	"fanpit/internal/status"
)

// apiError maps service-layer errors onto HTTP responses. Queue errors
// carry their reason (and, when known, the caller's position) in the
// response body so clients can render a useful state.
func apiError(err error) error {
	var qErr *status.QueueError
	if errors.As(err, &qErr) {
		body := map[string]any{"reason": qErr.Reason}
		if qErr.Position >= 0 {
			body["position"] = qErr.Position
		}
		if !qErr.CooldownUntil.IsZero() {
			body["cooldown_until"] = qErr.CooldownUntil
		}
		switch qErr.Reason {
		case status.ReasonInCooldown:
			return apis.NewApiError(http.StatusTooManyRequests, "Rejoin cooldown active", body)
		case status.ReasonNotAdmitted:
			return apis.NewForbiddenError("Not admitted yet", body)
		default:
			return apis.NewApiError(http.StatusConflict, "Queue state conflict", body)
		}
	}

	var vErr *status.ValidationError
	if errors.As(err, &vErr) {
		return apis.NewBadRequestError(vErr.Message, map[string]any{"field": vErr.Field})
	}

	var oErr *status.OversellError
	if errors.As(err, &oErr) {
		return apis.NewApiError(http.StatusConflict, "Not enough tickets left", map[string]any{
			"ticket_type_id": oErr.TicketTypeID,
			"requested":      oErr.Requested,
			"available":      oErr.Available,
		})
	}

	switch {
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.Is(err, status.ErrSessionExpired):
		return apis.NewApiError(http.StatusGone, "Checkout session expired", nil)
	case errors.Is(err, status.ErrConflict):
		return apis.NewApiError(http.StatusConflict, "Conflicting update, retry", nil)
	}
	return apis.NewApiError(http.StatusInternalServerError, "Something went wrong", err)
}
