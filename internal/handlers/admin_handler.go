package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"fanpit/internal/services"
	"fanpit/internal/status"
	"fanpit/internal/store"
	"fanpit/models"
)

type AdminHandler struct {
	store     store.Store
	redis     *redis.Client
	admission *services.Admission
	ledger    *services.Ledger
	reaper    *services.Reaper
}

func NewAdminHandler(st store.Store, redisClient *redis.Client, admission *services.Admission, ledger *services.Ledger, reaper *services.Reaper) *AdminHandler {
	return &AdminHandler{
		store:     st,
		redis:     redisClient,
		admission: admission,
		ledger:    ledger,
		reaper:    reaper,
	}
}

// GetQueueDashboard summarizes every active event's queue and sales
// counters for the ops dashboard.
func (h *AdminHandler) GetQueueDashboard(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	eventIDs, err := h.redis.SMembers(ctx, "active_events").Result()
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list active events", err)
	}

	dashboard := []map[string]any{}
	for _, eventID := range eventIDs {
		event, err := h.store.Event(ctx, eventID)
		if err != nil {
			continue
		}
		waiting, _ := h.store.CountQueueByStatus(ctx, eventID, models.QueueWaiting)
		admitted, _ := h.store.CountQueueByStatus(ctx, eventID, models.QueueAdmitted)
		purchased, _ := h.store.CountQueueByStatus(ctx, eventID, models.QueuePurchased)

		dashboard = append(dashboard, map[string]any{
			"event_id":       eventID,
			"event_name":     event.Name,
			"sale_status":    event.SaleStatus,
			"capacity":       event.Capacity,
			"tickets_sold":   event.TicketsSold,
			"admitted_slots": event.AdmittedSlots,
			"waiting":        waiting,
			"admitted":       admitted,
			"purchased":      purchased,
		})
	}

	return e.JSON(http.StatusOK, map[string]any{"events": dashboard})
}

// GetQueueDetails lists an event's waiting entries in admission order.
func (h *AdminHandler) GetQueueDetails(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}
	ctx := e.Request.Context()

	if _, err := h.store.Event(ctx, eventID); err != nil {
		return apiError(err)
	}
	waiting, err := h.store.WaitingEntries(ctx, eventID)
	if err != nil {
		return apiError(err)
	}

	entries := make([]map[string]any, 0, len(waiting))
	for position, entry := range waiting {
		entries = append(entries, map[string]any{
			"user_id":   entry.UserID,
			"seq":       entry.Seq,
			"position":  position,
			"joined_at": entry.JoinedAt,
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id": eventID,
		"waiting":  entries,
	})
}

// ForceSweep runs one reaper pass immediately.
func (h *AdminHandler) ForceSweep(e *core.RequestEvent) error {
	if err := h.reaper.Sweep(e.Request.Context()); err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Sweep failed", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Sweep completed"})
}

// RemoveFromQueue force-expires a user's live entry, freeing any
// admission slot it held.
func (h *AdminHandler) RemoveFromQueue(e *core.RequestEvent) error {
	var req struct {
		EventID string `json:"event_id"`
		UserID  string `json:"user_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" || req.UserID == "" {
		return apis.NewBadRequestError("Event ID and user ID required", nil)
	}
	ctx := e.Request.Context()

	err := h.store.RunInTransaction(ctx, func(tx store.Store) error {
		entry, err := tx.LiveQueueEntry(ctx, req.EventID, req.UserID)
		if err != nil {
			return err
		}
		if entry == nil {
			return status.NewQueueError(status.ReasonNotInQueue)
		}
		wasAdmitted := entry.Status == models.QueueAdmitted
		entry.Status = models.QueueExpired
		if err := tx.SaveQueueEntry(ctx, entry); err != nil {
			return err
		}
		if wasAdmitted {
			return h.admission.ReleaseSlot(ctx, tx, req.EventID, req.UserID)
		}
		return nil
	})
	if err != nil {
		return apiError(err)
	}

	if _, err := h.admission.FillSlots(ctx, req.EventID); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Removed from queue"})
}

// Reconcile cross-checks a ticket type's sold counter against its
// ledger balance.
func (h *AdminHandler) Reconcile(e *core.RequestEvent) error {
	ticketTypeID := e.Request.PathValue("ticketTypeId")
	if ticketTypeID == "" {
		return apis.NewBadRequestError("Ticket type ID required", nil)
	}

	consistent, err := h.ledger.Reconcile(e.Request.Context(), h.store, ticketTypeID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"ticket_type_id": ticketTypeID,
		"consistent":     consistent,
	})
}

// Restock reverses a prior order's deduction, reopening sales if the
// event was sold out.
func (h *AdminHandler) Restock(e *core.RequestEvent) error {
	var req struct {
		EventID string              `json:"event_id"`
		OrderID string              `json:"order_id"`
		Items   []services.LineItem `json:"items"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" || req.OrderID == "" || len(req.Items) == 0 {
		return apis.NewBadRequestError("Event ID, order ID, and items required", nil)
	}
	ctx := e.Request.Context()

	err := h.store.RunInTransaction(ctx, func(tx store.Store) error {
		return h.ledger.Restock(ctx, tx, req.EventID, req.OrderID, req.Items)
	})
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Restocked"})
}
