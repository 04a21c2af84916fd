package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fanpit/internal/status"
	"fanpit/models"
)

// MemStore keeps everything in process memory behind one mutex, so every
// transaction is trivially serializable. Useful for tests and local
// development, same role the in-memory repositories play elsewhere.
type MemStore struct {
	mu   *sync.Mutex
	data *memData
	inTx bool
}

type memData struct {
	seqs        map[string]int64
	events      map[string]*models.Event
	ticketTypes map[string]*models.TicketType
	queue       map[string]*models.QueueEntry
	sessions    map[string]*models.CheckoutSession
	tickets     []*models.UserTicket
	ledger      []*models.InventoryLedgerEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		mu: &sync.Mutex{},
		data: &memData{
			seqs:        make(map[string]int64),
			events:      make(map[string]*models.Event),
			ticketTypes: make(map[string]*models.TicketType),
			queue:       make(map[string]*models.QueueEntry),
			sessions:    make(map[string]*models.CheckoutSession),
		},
	}
}

func (d *memData) clone() *memData {
	out := &memData{
		seqs:        make(map[string]int64, len(d.seqs)),
		events:      make(map[string]*models.Event, len(d.events)),
		ticketTypes: make(map[string]*models.TicketType, len(d.ticketTypes)),
		queue:       make(map[string]*models.QueueEntry, len(d.queue)),
		sessions:    make(map[string]*models.CheckoutSession, len(d.sessions)),
		tickets:     make([]*models.UserTicket, len(d.tickets)),
		ledger:      make([]*models.InventoryLedgerEntry, len(d.ledger)),
	}
	for k, v := range d.seqs {
		out.seqs[k] = v
	}
	for k, v := range d.events {
		c := *v
		out.events[k] = &c
	}
	for k, v := range d.ticketTypes {
		c := *v
		out.ticketTypes[k] = &c
	}
	for k, v := range d.queue {
		c := *v
		out.queue[k] = &c
	}
	for k, v := range d.sessions {
		c := *v
		out.sessions[k] = &c
	}
	for i, v := range d.tickets {
		c := *v
		out.tickets[i] = &c
	}
	for i, v := range d.ledger {
		c := *v
		out.ledger[i] = &c
	}
	return out
}

func (s *MemStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTransaction serializes on the store mutex and rolls the whole
// state back if fn fails. Nested calls join the enclosing transaction.
func (s *MemStore) RunInTransaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &MemStore{mu: s.mu, data: s.data, inTx: true}
	if err := fn(tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

func (s *MemStore) NextSeq(ctx context.Context, eventID string) (int64, error) {
	defer s.lock()()
	s.data.seqs[eventID]++
	return s.data.seqs[eventID], nil
}

func (s *MemStore) Event(ctx context.Context, id string) (*models.Event, error) {
	defer s.lock()()
	event, ok := s.data.events[id]
	if !ok {
		return nil, status.ErrNotFound
	}
	c := *event
	return &c, nil
}

func (s *MemStore) SaveEvent(ctx context.Context, event *models.Event) error {
	defer s.lock()()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	c := *event
	s.data.events[event.ID] = &c
	return nil
}

func (s *MemStore) TicketType(ctx context.Context, id string) (*models.TicketType, error) {
	defer s.lock()()
	tt, ok := s.data.ticketTypes[id]
	if !ok {
		return nil, status.ErrNotFound
	}
	c := *tt
	return &c, nil
}

func (s *MemStore) SaveTicketType(ctx context.Context, tt *models.TicketType) error {
	defer s.lock()()
	if tt.ID == "" {
		tt.ID = uuid.NewString()
	}
	c := *tt
	s.data.ticketTypes[tt.ID] = &c
	return nil
}

func (s *MemStore) QueueEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	defer s.lock()()
	entry, ok := s.data.queue[id]
	if !ok {
		return nil, status.ErrNotFound
	}
	c := *entry
	return &c, nil
}

func (s *MemStore) LiveQueueEntry(ctx context.Context, eventID, userID string) (*models.QueueEntry, error) {
	defer s.lock()()
	for _, entry := range s.data.queue {
		if entry.EventID == eventID && entry.UserID == userID && entry.Live() {
			c := *entry
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemStore) LatestQueueEntry(ctx context.Context, eventID, userID string) (*models.QueueEntry, error) {
	defer s.lock()()
	var latest *models.QueueEntry
	for _, entry := range s.data.queue {
		if entry.EventID != eventID || entry.UserID != userID {
			continue
		}
		if latest == nil || entry.Seq > latest.Seq {
			latest = entry
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (s *MemStore) SaveQueueEntry(ctx context.Context, entry *models.QueueEntry) error {
	defer s.lock()()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	c := *entry
	s.data.queue[entry.ID] = &c
	return nil
}

func (s *MemStore) NextWaiting(ctx context.Context, eventID string) (*models.QueueEntry, error) {
	defer s.lock()()
	var next *models.QueueEntry
	for _, entry := range s.data.queue {
		if entry.EventID != eventID || entry.Status != models.QueueWaiting {
			continue
		}
		if next == nil || entry.Seq < next.Seq {
			next = entry
		}
	}
	if next == nil {
		return nil, nil
	}
	c := *next
	return &c, nil
}

func (s *MemStore) CountWaitingBefore(ctx context.Context, eventID string, seq int64) (int, error) {
	defer s.lock()()
	count := 0
	for _, entry := range s.data.queue {
		if entry.EventID == eventID && entry.Status == models.QueueWaiting && entry.Seq < seq {
			count++
		}
	}
	return count, nil
}

func (s *MemStore) CountQueueByStatus(ctx context.Context, eventID, queueStatus string) (int, error) {
	defer s.lock()()
	count := 0
	for _, entry := range s.data.queue {
		if entry.EventID == eventID && entry.Status == queueStatus {
			count++
		}
	}
	return count, nil
}

func (s *MemStore) ExpiredQueueEntries(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	defer s.lock()()
	var out []*models.QueueEntry
	for _, entry := range s.data.queue {
		if entry.ExpiredAt(now) {
			c := *entry
			out = append(out, &c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemStore) WaitingEntries(ctx context.Context, eventID string) ([]*models.QueueEntry, error) {
	defer s.lock()()
	var out []*models.QueueEntry
	for _, entry := range s.data.queue {
		if entry.EventID == eventID && entry.Status == models.QueueWaiting {
			c := *entry
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemStore) Session(ctx context.Context, id string) (*models.CheckoutSession, error) {
	defer s.lock()()
	session, ok := s.data.sessions[id]
	if !ok {
		return nil, status.ErrNotFound
	}
	c := *session
	return &c, nil
}

func (s *MemStore) ActiveSession(ctx context.Context, eventID, userID string, now time.Time) (*models.CheckoutSession, error) {
	defer s.lock()()
	for _, session := range s.data.sessions {
		if session.EventID == eventID && session.UserID == userID && session.Active(now) {
			c := *session
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemStore) SaveSession(ctx context.Context, session *models.CheckoutSession) error {
	defer s.lock()()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	c := *session
	s.data.sessions[session.ID] = &c
	return nil
}

func (s *MemStore) ExpiredSessions(ctx context.Context, now time.Time, limit int) ([]*models.CheckoutSession, error) {
	defer s.lock()()
	var out []*models.CheckoutSession
	for _, session := range s.data.sessions {
		if !session.Consumed && now.After(session.ExpiresAt) {
			c := *session
			out = append(out, &c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemStore) SaveTicket(ctx context.Context, ticket *models.UserTicket) error {
	defer s.lock()()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	c := *ticket
	s.data.tickets = append(s.data.tickets, &c)
	return nil
}

func (s *MemStore) TicketsByOrder(ctx context.Context, orderID string) ([]*models.UserTicket, error) {
	defer s.lock()()
	var out []*models.UserTicket
	for _, ticket := range s.data.tickets {
		if ticket.OrderID == orderID {
			c := *ticket
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemStore) AppendLedger(ctx context.Context, entry *models.InventoryLedgerEntry) error {
	defer s.lock()()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	c := *entry
	s.data.ledger = append(s.data.ledger, &c)
	return nil
}

func (s *MemStore) LedgerBalance(ctx context.Context, subjectID string) (int, error) {
	defer s.lock()()
	total := 0
	for _, entry := range s.data.ledger {
		if entry.SubjectID == subjectID {
			total += entry.Delta
		}
	}
	return total, nil
}
