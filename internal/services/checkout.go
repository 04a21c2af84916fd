package services

import (
	"context"
	"time"

	"fanpit/config"
	"fanpit/internal/status"
	"fanpit/internal/store"
	"fanpit/models"
	"fanpit/monitoring"
)

// Checkout issues the time-boxed, single-use reservation token an
// admitted buyer needs to call the purchase coordinator. One active
// session per (event, user).
type Checkout struct {
	store   store.Store
	config  *config.Config
	monitor *monitoring.Monitor
	now     func() time.Time
}

func NewCheckout(st store.Store, cfg *config.Config, monitor *monitoring.Monitor) *Checkout {
	return &Checkout{
		store:   st,
		config:  cfg,
		monitor: monitor,
		now:     time.Now,
	}
}

// StartCheckout creates (or idempotently returns) the caller's checkout
// session. Only an admitted queue entry authorizes this; the display
// position never does.
func (c *Checkout) StartCheckout(ctx context.Context, eventID, userID string) (*models.CheckoutSession, error) {
	var session *models.CheckoutSession

	err := c.store.RunInTransaction(ctx, func(tx store.Store) error {
		entry, err := tx.LiveQueueEntry(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if entry == nil {
			return status.NewQueueError(status.ReasonNotInQueue)
		}
		if entry.Status != models.QueueAdmitted {
			qErr := status.NewQueueError(status.ReasonNotAdmitted)
			if position, err := tx.CountWaitingBefore(ctx, eventID, entry.Seq); err == nil {
				qErr.Position = position
			}
			return qErr
		}

		now := c.now()
		existing, err := tx.ActiveSession(ctx, eventID, userID, now)
		if err != nil {
			return err
		}
		if existing != nil {
			session = existing
			return nil
		}

		session = &models.CheckoutSession{
			EventID:   eventID,
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(c.config.CheckoutExpiry),
		}
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}

		// Keep the entry alive at least as long as its session, so the
		// reaper retires both on the same deadline.
		if session.ExpiresAt.After(entry.ExpiresAt) {
			entry.ExpiresAt = session.ExpiresAt
			if err := tx.SaveQueueEntry(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.monitor.TrackQueueOperation("start_checkout", eventID, "error")
		return nil, err
	}

	c.monitor.TrackQueueOperation("start_checkout", eventID, "success")
	return session, nil
}
