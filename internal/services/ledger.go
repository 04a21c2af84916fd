package services

import (
	"context"
	"time"

	"fanpit/internal/status"
	"fanpit/internal/store"
	"fanpit/models"
	"fanpit/monitoring"
)

// LineItem is one requested (ticket type, quantity) pair.
type LineItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// Ledger is the authoritative check-and-deduct primitive over ticket
// type stock and event capacity. Every deduction leaves an append-only
// audit row, so stock can be reconstructed independent of the counters.
type Ledger struct {
	monitor *monitoring.Monitor
	now     func() time.Time
}

func NewLedger(monitor *monitoring.Monitor) *Ledger {
	return &Ledger{monitor: monitor, now: time.Now}
}

// mergeLines collapses repeated ticket types into one line each, so a
// request naming the same type twice is validated and committed against
// the summed quantity instead of two independent reads.
func mergeLines(items []LineItem) []LineItem {
	index := make(map[string]int, len(items))
	merged := make([]LineItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.TicketTypeID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.TicketTypeID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// ReserveAndDeduct validates every line against remaining stock, then
// commits all of them. Any failing line fails the whole call before a
// single counter moves. Must run inside the caller's transaction.
func (l *Ledger) ReserveAndDeduct(ctx context.Context, tx store.Store, eventID, orderID string, items []LineItem) error {
	items = mergeLines(items)

	event, err := tx.Event(ctx, eventID)
	if err != nil {
		return err
	}

	// Validate all lines first; nothing is written until every line fits.
	total := 0
	types := make([]*models.TicketType, len(items))
	for i, item := range items {
		tt, err := tx.TicketType(ctx, item.TicketTypeID)
		if err != nil {
			return err
		}
		if tt.EventID != eventID {
			return &status.ValidationError{
				Field:   "ticket_type_id",
				Message: "ticket type does not belong to this event",
			}
		}
		if item.Quantity > tt.Remaining() {
			l.monitor.TrackOversell(eventID)
			return &status.OversellError{
				TicketTypeID: tt.ID,
				Requested:    item.Quantity,
				Available:    tt.Remaining(),
			}
		}
		types[i] = tt
		total += item.Quantity
	}
	if total > event.Remaining() {
		l.monitor.TrackOversell(eventID)
		return &status.OversellError{
			TicketTypeID: eventID,
			Requested:    total,
			Available:    event.Remaining(),
		}
	}

	now := l.now()
	for i, item := range items {
		tt := types[i]
		tt.QuantitySold += item.Quantity
		if err := tx.SaveTicketType(ctx, tt); err != nil {
			return err
		}
		err := tx.AppendLedger(ctx, &models.InventoryLedgerEntry{
			SubjectID: tt.ID,
			Delta:     item.Quantity,
			Reason:    models.LedgerReasonPurchase,
			OrderID:   orderID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}

	event.TicketsSold += total
	if event.TicketsSold >= event.Capacity {
		event.SaleStatus = models.SaleSoldOut
	}
	return tx.SaveEvent(ctx, event)
}

// Restock reverses a prior deduction (admin cancellation path). Same
// all-or-nothing discipline, negative deltas.
func (l *Ledger) Restock(ctx context.Context, tx store.Store, eventID, orderID string, items []LineItem) error {
	items = mergeLines(items)

	event, err := tx.Event(ctx, eventID)
	if err != nil {
		return err
	}

	total := 0
	types := make([]*models.TicketType, len(items))
	for i, item := range items {
		tt, err := tx.TicketType(ctx, item.TicketTypeID)
		if err != nil {
			return err
		}
		if tt.EventID != eventID {
			return &status.ValidationError{
				Field:   "ticket_type_id",
				Message: "ticket type does not belong to this event",
			}
		}
		if item.Quantity > tt.QuantitySold {
			return &status.ValidationError{
				Field:   "quantity",
				Message: "restock exceeds sold quantity",
			}
		}
		types[i] = tt
		total += item.Quantity
	}

	now := l.now()
	for i, item := range items {
		tt := types[i]
		tt.QuantitySold -= item.Quantity
		if err := tx.SaveTicketType(ctx, tt); err != nil {
			return err
		}
		err := tx.AppendLedger(ctx, &models.InventoryLedgerEntry{
			SubjectID: tt.ID,
			Delta:     -item.Quantity,
			Reason:    models.LedgerReasonRestock,
			OrderID:   orderID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}

	event.TicketsSold -= total
	if event.SaleStatus == models.SaleSoldOut && event.TicketsSold < event.Capacity {
		event.SaleStatus = models.SaleOnSale
	}
	return tx.SaveEvent(ctx, event)
}

// Reconcile compares a ticket type's mutable counter with the sum of its
// ledger rows. A mismatch means a bug or manual tampering; the ledger
// is the record of truth.
func (l *Ledger) Reconcile(ctx context.Context, st store.Store, ticketTypeID string) (bool, error) {
	tt, err := st.TicketType(ctx, ticketTypeID)
	if err != nil {
		return false, err
	}
	balance, err := st.LedgerBalance(ctx, ticketTypeID)
	if err != nil {
		return false, err
	}
	return balance == tt.QuantitySold, nil
}
