package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"fanpit/config"
	"fanpit/internal/status"
	"fanpit/internal/store"
	"fanpit/models"
	"fanpit/monitoring"
)

// Sequencer owns queue membership: joining, leaving, and the read-only
// queue state. Seq numbers come from the per-event counter inside the
// join transaction, so two concurrent joins can never share one.
type Sequencer struct {
	store     store.Store
	Redis     *redis.Client
	admission *Admission
	config    *config.Config
	monitor   *monitoring.Monitor
	notifier  *Notifier
	now       func() time.Time
}

func NewSequencer(st store.Store, redisClient *redis.Client, admission *Admission, cfg *config.Config, monitor *monitoring.Monitor, notifier *Notifier) *Sequencer {
	return &Sequencer{
		store:     st,
		Redis:     redisClient,
		admission: admission,
		config:    cfg,
		monitor:   monitor,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Join puts the user into the event's queue. Re-joining with a live
// entry returns that entry unchanged; re-joining during cooldown fails.
func (s *Sequencer) Join(ctx context.Context, eventID, userID string) (*models.QueueEntry, error) {
	var entry *models.QueueEntry

	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.Event(ctx, eventID); err != nil {
			return err
		}

		live, err := tx.LiveQueueEntry(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if live != nil {
			entry = live
			return nil
		}

		now := s.now()
		latest, err := tx.LatestQueueEntry(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if latest != nil && latest.InCooldown(now) {
			return &status.QueueError{
				Reason:        status.ReasonInCooldown,
				CooldownUntil: latest.CooldownUntil,
				Position:      -1,
			}
		}

		seq, err := tx.NextSeq(ctx, eventID)
		if err != nil {
			return err
		}

		entry = &models.QueueEntry{
			EventID:   eventID,
			UserID:    userID,
			Seq:       seq,
			Status:    models.QueueWaiting,
			JoinedAt:  now,
			ExpiresAt: now.Add(s.config.QueueExpiry),
		}
		return tx.SaveQueueEntry(ctx, entry)
	})
	if err != nil {
		s.monitor.TrackQueueOperation("join", eventID, "error")
		return nil, err
	}

	s.monitor.TrackQueueOperation("join", eventID, "success")

	// Admit speculatively: with free slots the new entry should not wait
	// for the next reaper tick.
	if _, err := s.admission.FillSlots(ctx, eventID); err != nil {
		slog.Warn("speculative admission after join failed", "event", eventID, "error", err)
	}

	return entry, nil
}

// Leave drops the user's live entry. Admitted entries give their slot
// back and the next waiter is admitted. No cooldown applies.
func (s *Sequencer) Leave(ctx context.Context, eventID, userID string) error {
	wasAdmitted := false

	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		entry, err := tx.LiveQueueEntry(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if entry == nil {
			return status.NewQueueError(status.ReasonNotInQueue)
		}

		wasAdmitted = entry.Status == models.QueueAdmitted
		entry.Status = models.QueueLeft
		if err := tx.SaveQueueEntry(ctx, entry); err != nil {
			return err
		}

		if wasAdmitted {
			return s.admission.ReleaseSlot(ctx, tx, eventID, userID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.monitor.TrackQueueOperation("leave", eventID, "success")

	if wasAdmitted {
		if _, err := s.admission.FillSlots(ctx, eventID); err != nil {
			slog.Warn("admission after leave failed", "event", eventID, "error", err)
		}
	}
	return nil
}

// QueueState is the poll answer for one (event, user) pair.
type QueueState struct {
	Status                string    `json:"status"`
	Seq                   int64     `json:"seq,omitempty"`
	Position              int       `json:"position"`
	ExpiresAt             time.Time `json:"expires_at,omitempty"`
	CooldownUntil         time.Time `json:"cooldown_until,omitempty"`
	CheckoutSessionExists bool      `json:"checkout_session_exists"`
}

// State reports the caller's queue status. Read-only: it never changes
// admission state, and position here is display-only.
func (s *Sequencer) State(ctx context.Context, eventID, userID string) (*QueueState, error) {
	now := s.now()

	entry, err := s.store.LatestQueueEntry(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &QueueState{Status: "not_in_queue", Position: -1}, nil
	}

	state := &QueueState{
		Status:   entry.Status,
		Seq:      entry.Seq,
		Position: -1,
	}
	if entry.Live() {
		state.ExpiresAt = entry.ExpiresAt
	}
	if entry.InCooldown(now) {
		state.CooldownUntil = entry.CooldownUntil
	}

	if entry.Status == models.QueueWaiting {
		state.Position = s.displayPosition(ctx, entry)
	}

	session, err := s.store.ActiveSession(ctx, eventID, userID, now)
	if err != nil {
		return nil, err
	}
	state.CheckoutSessionExists = session != nil

	return state, nil
}

// displayPosition prefers the position cache the updater maintains and
// falls back to the authoritative count.
func (s *Sequencer) displayPosition(ctx context.Context, entry *models.QueueEntry) int {
	if s.Redis != nil {
		posKey := fmt.Sprintf("queue:position:%s:%s", entry.EventID, entry.UserID)
		if position, err := s.Redis.Get(ctx, posKey).Int(); err == nil {
			return position
		}
	}

	position, err := s.admission.Position(ctx, entry)
	if err != nil {
		slog.Warn("position fallback failed", "event", entry.EventID, "user", entry.UserID, "error", err)
		return -1
	}
	return position
}
