package services

import (
	"context"
	"time"

	"fanpit/config"
	"fanpit/internal/store"
	"fanpit/models"
	"fanpit/monitoring"
)

// Admission maintains the authoritative admitted-slots counter per event.
// Admission is a one-way, state-changing transition: once an entry is
// admitted it stays admitted until it purchases, expires, or leaves,
// regardless of how the rest of the queue moves.
type Admission struct {
	store    store.Store
	config   *config.Config
	monitor  *monitoring.Monitor
	notifier *Notifier
	now      func() time.Time
}

func NewAdmission(st store.Store, cfg *config.Config, monitor *monitoring.Monitor, notifier *Notifier) *Admission {
	return &Admission{
		store:    st,
		config:   cfg,
		monitor:  monitor,
		notifier: notifier,
		now:      time.Now,
	}
}

// TryAdmitNext admits the smallest-seq waiting entry if a slot is free.
// Returns nil when the event is at its checkout limit or nobody waits.
// The slot check, the entry transition, and the counter increment are
// one transaction.
func (a *Admission) TryAdmitNext(ctx context.Context, eventID string) (*models.QueueEntry, error) {
	var admitted *models.QueueEntry

	err := a.store.RunInTransaction(ctx, func(tx store.Store) error {
		event, err := tx.Event(ctx, eventID)
		if err != nil {
			return err
		}
		if event.AdmittedSlots >= a.config.CheckoutLimit {
			return nil
		}

		next, err := tx.NextWaiting(ctx, eventID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		next.Status = models.QueueAdmitted
		// The admitted window is the checkout window: the buyer must
		// start (and finish) checkout before this deadline or the
		// reaper reclaims the slot.
		next.ExpiresAt = a.now().Add(a.config.CheckoutExpiry)
		if err := tx.SaveQueueEntry(ctx, next); err != nil {
			return err
		}

		event.AdmittedSlots++
		if err := tx.SaveEvent(ctx, event); err != nil {
			return err
		}

		admitted = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if admitted != nil {
		a.monitor.TrackQueueOperation("admit", eventID, "success")
		a.notifier.Admitted(admitted.UserID, eventID, admitted.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return admitted, nil
}

// FillSlots admits waiters until the event is at its limit or the queue
// is drained. Returns how many entries were admitted.
func (a *Admission) FillSlots(ctx context.Context, eventID string) (int, error) {
	count := 0
	for {
		admitted, err := a.TryAdmitNext(ctx, eventID)
		if err != nil {
			return count, err
		}
		if admitted == nil {
			return count, nil
		}
		count++
	}
}

// Position is the display-only place in line: the number of waiting
// entries with a smaller seq. Never an admission decision.
func (a *Admission) Position(ctx context.Context, entry *models.QueueEntry) (int, error) {
	if entry.Status != models.QueueWaiting {
		return -1, nil
	}
	return a.store.CountWaitingBefore(ctx, entry.EventID, entry.Seq)
}

// ReleaseSlot gives an admitted entry's slot back and closes any active
// checkout session the holder still has. Must run inside the same
// transaction as the entry's terminal transition.
func (a *Admission) ReleaseSlot(ctx context.Context, tx store.Store, eventID, userID string) error {
	event, err := tx.Event(ctx, eventID)
	if err != nil {
		return err
	}
	if event.AdmittedSlots > 0 {
		event.AdmittedSlots--
		if err := tx.SaveEvent(ctx, event); err != nil {
			return err
		}
	}

	session, err := tx.ActiveSession(ctx, eventID, userID, a.now())
	if err != nil {
		return err
	}
	if session != nil {
		session.Consumed = true
		return tx.SaveSession(ctx, session)
	}
	return nil
}
