package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"fanpit/internal/status"
	"fanpit/models"
)

// Collection names owned by (or read by) the pipeline.
const (
	CollectionEvents      = "events"
	CollectionTicketTypes = "ticket_types"
	CollectionQueue       = "event_queue"
	CollectionCounters    = "queue_counters"
	CollectionSessions    = "checkout_sessions"
	CollectionTickets     = "user_tickets"
	CollectionLedger      = "inventory_ledger"
)

// PBStore persists pipeline state in PocketBase collections. SQLite
// serializes write transactions, which gives RunInTransaction the
// serializable semantics the admission and purchase paths rely on.
type PBStore struct {
	app core.App
}

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

func (s *PBStore) RunInTransaction(ctx context.Context, fn func(tx Store) error) error {
	err := s.app.RunInTransaction(func(txApp core.App) error {
		return fn(&PBStore{app: txApp})
	})
	if isBusy(err) {
		return fmt.Errorf("%w: %v", status.ErrConflict, err)
	}
	return err
}

// isBusy reports whether err is SQLite signalling a lost race between
// write transactions. Callers see ErrConflict and may retry.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func (s *PBStore) NextSeq(ctx context.Context, eventID string) (int64, error) {
	record, err := s.app.FindFirstRecordByFilter(CollectionCounters,
		"event = {:event}", dbx.Params{"event": eventID})
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		collection, err := s.app.FindCollectionByNameOrId(CollectionCounters)
		if err != nil {
			return 0, err
		}
		record = core.NewRecord(collection)
		record.Set("event", eventID)
		record.Set("seq", 0)
	}

	next := int64(record.GetInt("seq")) + 1
	record.Set("seq", next)
	if err := s.app.Save(record); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *PBStore) Event(ctx context.Context, id string) (*models.Event, error) {
	record, err := s.app.FindRecordById(CollectionEvents, id)
	if err != nil {
		return nil, notFound(err)
	}
	return eventFromRecord(record), nil
}

func (s *PBStore) SaveEvent(ctx context.Context, event *models.Event) error {
	record, err := s.app.FindRecordById(CollectionEvents, event.ID)
	if err != nil {
		return notFound(err)
	}
	record.Set("capacity", event.Capacity)
	record.Set("tickets_sold", event.TicketsSold)
	record.Set("admitted_slots", event.AdmittedSlots)
	record.Set("sale_status", event.SaleStatus)
	return s.app.Save(record)
}

func (s *PBStore) TicketType(ctx context.Context, id string) (*models.TicketType, error) {
	record, err := s.app.FindRecordById(CollectionTicketTypes, id)
	if err != nil {
		return nil, notFound(err)
	}
	return ticketTypeFromRecord(record), nil
}

func (s *PBStore) SaveTicketType(ctx context.Context, tt *models.TicketType) error {
	record, err := s.app.FindRecordById(CollectionTicketTypes, tt.ID)
	if err != nil {
		return notFound(err)
	}
	record.Set("quantity", tt.Quantity)
	record.Set("quantity_sold", tt.QuantitySold)
	return s.app.Save(record)
}

func (s *PBStore) QueueEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	record, err := s.app.FindRecordById(CollectionQueue, id)
	if err != nil {
		return nil, notFound(err)
	}
	return queueEntryFromRecord(record), nil
}

func (s *PBStore) LiveQueueEntry(ctx context.Context, eventID, userID string) (*models.QueueEntry, error) {
	record, err := s.app.FindFirstRecordByFilter(CollectionQueue,
		"event = {:event} && user = {:user} && (status = 'waiting' || status = 'admitted')",
		dbx.Params{"event": eventID, "user": userID})
	if err != nil {
		return nil, maybe(err)
	}
	return queueEntryFromRecord(record), nil
}

func (s *PBStore) LatestQueueEntry(ctx context.Context, eventID, userID string) (*models.QueueEntry, error) {
	records, err := s.app.FindRecordsByFilter(CollectionQueue,
		"event = {:event} && user = {:user}", "-seq", 1, 0,
		dbx.Params{"event": eventID, "user": userID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return queueEntryFromRecord(records[0]), nil
}

func (s *PBStore) SaveQueueEntry(ctx context.Context, entry *models.QueueEntry) error {
	var record *core.Record
	if entry.ID == "" {
		collection, err := s.app.FindCollectionByNameOrId(CollectionQueue)
		if err != nil {
			return err
		}
		record = core.NewRecord(collection)
	} else {
		var err error
		record, err = s.app.FindRecordById(CollectionQueue, entry.ID)
		if err != nil {
			return notFound(err)
		}
	}

	record.Set("event", entry.EventID)
	record.Set("user", entry.UserID)
	record.Set("seq", entry.Seq)
	record.Set("status", entry.Status)
	record.Set("joined_at", entry.JoinedAt)
	record.Set("expires_at", entry.ExpiresAt)
	if entry.CooldownUntil.IsZero() {
		record.Set("cooldown_until", "")
	} else {
		record.Set("cooldown_until", entry.CooldownUntil)
	}

	if err := s.app.Save(record); err != nil {
		return err
	}
	entry.ID = record.Id
	return nil
}

func (s *PBStore) NextWaiting(ctx context.Context, eventID string) (*models.QueueEntry, error) {
	records, err := s.app.FindRecordsByFilter(CollectionQueue,
		"event = {:event} && status = 'waiting'", "+seq", 1, 0,
		dbx.Params{"event": eventID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return queueEntryFromRecord(records[0]), nil
}

func (s *PBStore) CountWaitingBefore(ctx context.Context, eventID string, seq int64) (int, error) {
	var count int
	err := s.app.DB().NewQuery(
		"SELECT COUNT(*) FROM event_queue WHERE event = {:event} AND status = 'waiting' AND seq < {:seq}").
		Bind(dbx.Params{"event": eventID, "seq": seq}).
		Row(&count)
	return count, err
}

func (s *PBStore) CountQueueByStatus(ctx context.Context, eventID, queueStatus string) (int, error) {
	var count int
	err := s.app.DB().NewQuery(
		"SELECT COUNT(*) FROM event_queue WHERE event = {:event} AND status = {:status}").
		Bind(dbx.Params{"event": eventID, "status": queueStatus}).
		Row(&count)
	return count, err
}

func (s *PBStore) ExpiredQueueEntries(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	records, err := s.app.FindRecordsByFilter(CollectionQueue,
		"(status = 'waiting' || status = 'admitted') && expires_at != '' && expires_at < {:now}",
		"+expires_at", limit, 0, dbx.Params{"now": pbTime(now)})
	if err != nil {
		return nil, err
	}
	entries := make([]*models.QueueEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, queueEntryFromRecord(record))
	}
	return entries, nil
}

func (s *PBStore) WaitingEntries(ctx context.Context, eventID string) ([]*models.QueueEntry, error) {
	records, err := s.app.FindRecordsByFilter(CollectionQueue,
		"event = {:event} && status = 'waiting'",
		"+seq", 0, 0, dbx.Params{"event": eventID})
	if err != nil {
		return nil, err
	}
	entries := make([]*models.QueueEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, queueEntryFromRecord(record))
	}
	return entries, nil
}

func (s *PBStore) Session(ctx context.Context, id string) (*models.CheckoutSession, error) {
	record, err := s.app.FindRecordById(CollectionSessions, id)
	if err != nil {
		return nil, notFound(err)
	}
	return sessionFromRecord(record), nil
}

func (s *PBStore) ActiveSession(ctx context.Context, eventID, userID string, now time.Time) (*models.CheckoutSession, error) {
	record, err := s.app.FindFirstRecordByFilter(CollectionSessions,
		"event = {:event} && user = {:user} && consumed = false && expires_at > {:now}",
		dbx.Params{"event": eventID, "user": userID, "now": pbTime(now)})
	if err != nil {
		return nil, maybe(err)
	}
	return sessionFromRecord(record), nil
}

func (s *PBStore) SaveSession(ctx context.Context, session *models.CheckoutSession) error {
	var record *core.Record
	if session.ID == "" {
		collection, err := s.app.FindCollectionByNameOrId(CollectionSessions)
		if err != nil {
			return err
		}
		record = core.NewRecord(collection)
		record.Set("created_at", session.CreatedAt)
	} else {
		var err error
		record, err = s.app.FindRecordById(CollectionSessions, session.ID)
		if err != nil {
			return notFound(err)
		}
	}

	record.Set("event", session.EventID)
	record.Set("user", session.UserID)
	record.Set("expires_at", session.ExpiresAt)
	record.Set("consumed", session.Consumed)

	if err := s.app.Save(record); err != nil {
		return err
	}
	session.ID = record.Id
	return nil
}

func (s *PBStore) ExpiredSessions(ctx context.Context, now time.Time, limit int) ([]*models.CheckoutSession, error) {
	records, err := s.app.FindRecordsByFilter(CollectionSessions,
		"consumed = false && expires_at < {:now}", "+expires_at", limit, 0,
		dbx.Params{"now": pbTime(now)})
	if err != nil {
		return nil, err
	}
	sessions := make([]*models.CheckoutSession, 0, len(records))
	for _, record := range records {
		sessions = append(sessions, sessionFromRecord(record))
	}
	return sessions, nil
}

func (s *PBStore) SaveTicket(ctx context.Context, ticket *models.UserTicket) error {
	collection, err := s.app.FindCollectionByNameOrId(CollectionTickets)
	if err != nil {
		return err
	}
	record := core.NewRecord(collection)
	record.Set("event", ticket.EventID)
	record.Set("ticket_type", ticket.TicketTypeID)
	record.Set("user", ticket.UserID)
	record.Set("order_id", ticket.OrderID)
	record.Set("quantity", ticket.Quantity)
	record.Set("ticket_number", ticket.TicketNumber)
	record.Set("confirmation_code", ticket.ConfirmationCode)
	record.Set("status", ticket.Status)
	record.Set("purchased_at", ticket.PurchasedAt)

	if err := s.app.Save(record); err != nil {
		return err
	}
	ticket.ID = record.Id
	return nil
}

func (s *PBStore) TicketsByOrder(ctx context.Context, orderID string) ([]*models.UserTicket, error) {
	records, err := s.app.FindRecordsByFilter(CollectionTickets,
		"order_id = {:order}", "+created", 0, 0, dbx.Params{"order": orderID})
	if err != nil {
		return nil, err
	}
	tickets := make([]*models.UserTicket, 0, len(records))
	for _, record := range records {
		tickets = append(tickets, ticketFromRecord(record))
	}
	return tickets, nil
}

func (s *PBStore) AppendLedger(ctx context.Context, entry *models.InventoryLedgerEntry) error {
	collection, err := s.app.FindCollectionByNameOrId(CollectionLedger)
	if err != nil {
		return err
	}
	record := core.NewRecord(collection)
	record.Set("subject", entry.SubjectID)
	record.Set("delta", entry.Delta)
	record.Set("reason", entry.Reason)
	record.Set("order_id", entry.OrderID)
	record.Set("created_at", entry.CreatedAt)

	if err := s.app.Save(record); err != nil {
		return err
	}
	entry.ID = record.Id
	return nil
}

func (s *PBStore) LedgerBalance(ctx context.Context, subjectID string) (int, error) {
	var total sql.NullInt64
	err := s.app.DB().NewQuery(
		"SELECT SUM(delta) FROM inventory_ledger WHERE subject = {:subject}").
		Bind(dbx.Params{"subject": subjectID}).
		Row(&total)
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

// pbTime renders a timestamp the way PocketBase stores date fields, so
// it compares correctly inside record filters.
func pbTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000Z")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return status.ErrNotFound
	}
	return err
}

// maybe maps "no rows" to a nil result for lookups that may be empty.
func maybe(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func eventFromRecord(record *core.Record) *models.Event {
	return &models.Event{
		ID:            record.Id,
		Name:          record.GetString("name"),
		Capacity:      record.GetInt("capacity"),
		TicketsSold:   record.GetInt("tickets_sold"),
		AdmittedSlots: record.GetInt("admitted_slots"),
		SaleStartAt:   record.GetDateTime("sale_start_at").Time(),
		SaleEndAt:     record.GetDateTime("sale_end_at").Time(),
		SaleStatus:    record.GetString("sale_status"),
	}
}

func ticketTypeFromRecord(record *core.Record) *models.TicketType {
	return &models.TicketType{
		ID:           record.Id,
		EventID:      record.GetString("event"),
		Name:         record.GetString("name"),
		Price:        decimal.NewFromFloat(record.GetFloat("price")),
		Quantity:     record.GetInt("quantity"),
		QuantitySold: record.GetInt("quantity_sold"),
		SaleStartAt:  record.GetDateTime("sale_start_at").Time(),
		SaleEndAt:    record.GetDateTime("sale_end_at").Time(),
	}
}

func queueEntryFromRecord(record *core.Record) *models.QueueEntry {
	return &models.QueueEntry{
		ID:            record.Id,
		EventID:       record.GetString("event"),
		UserID:        record.GetString("user"),
		Seq:           int64(record.GetInt("seq")),
		Status:        record.GetString("status"),
		JoinedAt:      record.GetDateTime("joined_at").Time(),
		ExpiresAt:     record.GetDateTime("expires_at").Time(),
		CooldownUntil: record.GetDateTime("cooldown_until").Time(),
	}
}

func sessionFromRecord(record *core.Record) *models.CheckoutSession {
	return &models.CheckoutSession{
		ID:        record.Id,
		EventID:   record.GetString("event"),
		UserID:    record.GetString("user"),
		CreatedAt: record.GetDateTime("created_at").Time(),
		ExpiresAt: record.GetDateTime("expires_at").Time(),
		Consumed:  record.GetBool("consumed"),
	}
}

func ticketFromRecord(record *core.Record) *models.UserTicket {
	return &models.UserTicket{
		ID:               record.Id,
		EventID:          record.GetString("event"),
		TicketTypeID:     record.GetString("ticket_type"),
		UserID:           record.GetString("user"),
		OrderID:          record.GetString("order_id"),
		Quantity:         record.GetInt("quantity"),
		TicketNumber:     record.GetString("ticket_number"),
		ConfirmationCode: record.GetString("confirmation_code"),
		Status:           record.GetString("status"),
		PurchasedAt:      record.GetDateTime("purchased_at").Time(),
	}
}
