// Package store is the persistence boundary of the admission pipeline.
// The PocketBase-backed implementation is authoritative in production;
// the in-memory implementation backs tests and local development.
package store

import (
	"context"
	"time"

	"fanpit/models"
)

// Store gives services transactional access to the pipeline's state.
//
// Lookups that can legitimately find nothing (live entries, active
// sessions, next waiter) return (nil, nil); by-id lookups return
// status.ErrNotFound. All mutating service logic must run inside
// RunInTransaction: the transaction is the atomic boundary that makes
// read-modify-write on the shared counters safe.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// NextSeq increments and returns the per-event join counter. Values
	// are strictly increasing and never reused. Call it inside a
	// transaction; the counter row shares the transaction's serialization.
	NextSeq(ctx context.Context, eventID string) (int64, error)

	Event(ctx context.Context, id string) (*models.Event, error)
	SaveEvent(ctx context.Context, event *models.Event) error
	TicketType(ctx context.Context, id string) (*models.TicketType, error)
	SaveTicketType(ctx context.Context, tt *models.TicketType) error

	QueueEntry(ctx context.Context, id string) (*models.QueueEntry, error)
	LiveQueueEntry(ctx context.Context, eventID, userID string) (*models.QueueEntry, error)
	LatestQueueEntry(ctx context.Context, eventID, userID string) (*models.QueueEntry, error)
	SaveQueueEntry(ctx context.Context, entry *models.QueueEntry) error
	NextWaiting(ctx context.Context, eventID string) (*models.QueueEntry, error)
	CountWaitingBefore(ctx context.Context, eventID string, seq int64) (int, error)
	CountQueueByStatus(ctx context.Context, eventID, queueStatus string) (int, error)
	ExpiredQueueEntries(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error)
	// WaitingEntries returns every waiting entry for the event ordered
	// by seq. Feeds the position cache refresh.
	WaitingEntries(ctx context.Context, eventID string) ([]*models.QueueEntry, error)

	Session(ctx context.Context, id string) (*models.CheckoutSession, error)
	ActiveSession(ctx context.Context, eventID, userID string, now time.Time) (*models.CheckoutSession, error)
	SaveSession(ctx context.Context, session *models.CheckoutSession) error
	ExpiredSessions(ctx context.Context, now time.Time, limit int) ([]*models.CheckoutSession, error)

	SaveTicket(ctx context.Context, ticket *models.UserTicket) error
	TicketsByOrder(ctx context.Context, orderID string) ([]*models.UserTicket, error)
	AppendLedger(ctx context.Context, entry *models.InventoryLedgerEntry) error

	// LedgerBalance sums all deltas recorded for a subject. Used by the
	// reconciliation path to cross-check the mutable counters.
	LedgerBalance(ctx context.Context, subjectID string) (int, error)
}
