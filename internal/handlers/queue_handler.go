package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"fanpit/internal/services"
)

type QueueHandler struct {
	sequencer *services.Sequencer
}

func NewQueueHandler(sequencer *services.Sequencer) *QueueHandler {
	return &QueueHandler{sequencer: sequencer}
}

// JoinQueue puts the authenticated user in the event's queue. Rejoining
// while already live returns the existing entry unchanged.
func (h *QueueHandler) JoinQueue(e *core.RequestEvent) error {
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

	entry, err := h.sequencer.Join(e.Request.Context(), req.EventID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"status":     entry.Status,
		"seq":        entry.Seq,
		"expires_at": entry.ExpiresAt,
	})
}

// LeaveQueue removes the authenticated user's live entry.
func (h *QueueHandler) LeaveQueue(e *core.RequestEvent) error {
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

	if err := h.sequencer.Leave(e.Request.Context(), req.EventID, e.Auth.Id); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Left queue"})
}

// GetQueueState reports the caller's current queue status and display
// position for an event.
func (h *QueueHandler) GetQueueState(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.URL.Query().Get("event_id")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	state, err := h.sequencer.State(e.Request.Context(), eventID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, state)
}
