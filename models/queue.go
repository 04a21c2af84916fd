package models

import (
	"time"
)

const (
	QueueWaiting   = "waiting"
	QueueAdmitted  = "admitted"
	QueuePurchased = "purchased"
	QueueExpired   = "expired"
	QueueLeft      = "left"
)

// QueueEntry is one user's place in an event's virtual queue. Seq is
// assigned once per entry from a per-event counter and never reused, so
// ordering between any two entries of the same event is total.
type QueueEntry struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id"`
	Seq           int64     `json:"seq"`
	Status        string    `json:"status"` // waiting, admitted, purchased, expired, left
	JoinedAt      time.Time `json:"joined_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

// Live reports whether the entry still occupies a place in the queue.
func (q *QueueEntry) Live() bool {
	return q.Status == QueueWaiting || q.Status == QueueAdmitted
}

func (q *QueueEntry) Terminal() bool {
	return !q.Live()
}

func (q *QueueEntry) InCooldown(now time.Time) bool {
	return !q.CooldownUntil.IsZero() && now.Before(q.CooldownUntil)
}

func (q *QueueEntry) ExpiredAt(now time.Time) bool {
	return q.Live() && !q.ExpiresAt.IsZero() && now.After(q.ExpiresAt)
}

// CheckoutSession is the single-use reservation token issued to an
// admitted buyer. Its id doubles as the purchase idempotency key.
type CheckoutSession struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

func (s *CheckoutSession) Active(now time.Time) bool {
	return !s.Consumed && now.Before(s.ExpiresAt)
}
