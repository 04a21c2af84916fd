package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fanpit/internal/services/settlement"
	"fanpit/internal/status"
	"fanpit/internal/store"
	"fanpit/models"
	"fanpit/monitoring"
	"fanpit/utils"
)

// PurchaseResult is what the buyer gets back on success.
type PurchaseResult struct {
	OrderID string               `json:"order_id"`
	Amount  decimal.Decimal      `json:"amount"`
	Tickets []*models.UserTicket `json:"tickets"`
}

// Purchaser drives the whole purchase: validate the session, authorize
// settlement, then atomically consume the session, deduct stock, and
// issue tickets. The store transaction is the only place counters move.
type Purchaser struct {
	store     store.Store
	ledger    *Ledger
	admission *Admission
	settle    settlement.Authorizer
	breaker   *utils.CircuitBreaker
	notifier  *Notifier
	monitor   *monitoring.Monitor
	now       func() time.Time
}

func NewPurchaser(st store.Store, ledger *Ledger, admission *Admission, settle settlement.Authorizer, notifier *Notifier, monitor *monitoring.Monitor) *Purchaser {
	return &Purchaser{
		store:     st,
		ledger:    ledger,
		admission: admission,
		settle:    settle,
		breaker:   utils.NewCircuitBreaker("settlement"),
		notifier:  notifier,
		monitor:   monitor,
		now:       time.Now,
	}
}

// Purchase executes one order against a checkout session. The session id
// doubles as the idempotency key: a session is consumed exactly once, so
// retrying a completed purchase returns ErrSessionExpired rather than a
// second deduction.
//
// Settlement authorization runs before the transaction opens. A stale
// authorization can only abort the purchase later; it can never oversell,
// because stock is re-validated inside the transaction.
func (p *Purchaser) Purchase(ctx context.Context, sessionID string, items []LineItem) (*PurchaseResult, error) {
	if len(items) == 0 {
		return nil, &status.ValidationError{Field: "items", Message: "at least one line item is required"}
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &status.ValidationError{Field: "quantity", Message: "quantity must be positive"}
		}
		if _, dup := seen[item.TicketTypeID]; dup {
			return nil, &status.ValidationError{Field: "items", Message: "duplicate ticket type in line items"}
		}
		seen[item.TicketTypeID] = struct{}{}
	}

	session, err := p.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := p.now()
	if !session.Active(now) {
		return nil, status.ErrSessionExpired
	}

	event, err := p.store.Event(ctx, session.EventID)
	if err != nil {
		return nil, err
	}
	if !event.Purchasable(now) {
		return nil, &status.ValidationError{Field: "event_id", Message: "event is not on sale"}
	}

	amount := decimal.Zero
	for _, item := range items {
		tt, err := p.store.TicketType(ctx, item.TicketTypeID)
		if err != nil {
			return nil, err
		}
		if tt.EventID != session.EventID {
			return nil, &status.ValidationError{
				Field:   "ticket_type_id",
				Message: "ticket type does not belong to this event",
			}
		}
		amount = amount.Add(tt.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	orderID := uuid.NewString()
	eventID, userID := session.EventID, session.UserID

	// Pre-authorize outside the transaction. The breaker keeps a flapping
	// provider from tying up every purchase attempt in timeouts.
	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.settle.Authorize(ctx, &settlement.AuthorizeRequest{
			OrderID: orderID,
			UserID:  userID,
			EventID: eventID,
			Amount:  amount,
		})
	})
	if err != nil {
		p.monitor.TrackPurchase(eventID, "settlement_failed")
		return nil, fmt.Errorf("purchase %s: %w", orderID, err)
	}

	var tickets []*models.UserTicket
	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		// Re-load under the transaction; everything checked outside is
		// advisory only.
		session, err := tx.Session(ctx, sessionID)
		if err != nil {
			return err
		}
		now := p.now()
		if !session.Active(now) {
			return status.ErrSessionExpired
		}
		session.Consumed = true
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}

		entry, err := tx.LiveQueueEntry(ctx, session.EventID, session.UserID)
		if err != nil {
			return err
		}
		if entry == nil || entry.Status != models.QueueAdmitted {
			return status.ErrSessionExpired
		}
		entry.Status = models.QueuePurchased
		if err := tx.SaveQueueEntry(ctx, entry); err != nil {
			return err
		}

		if err := p.ledger.ReserveAndDeduct(ctx, tx, session.EventID, orderID, items); err != nil {
			return err
		}

		event, err := tx.Event(ctx, session.EventID)
		if err != nil {
			return err
		}
		if event.AdmittedSlots > 0 {
			event.AdmittedSlots--
		}
		if err := tx.SaveEvent(ctx, event); err != nil {
			return err
		}

		tickets = tickets[:0]
		for _, item := range items {
			number, err := utils.GenerateTicketNumber()
			if err != nil {
				return err
			}
			code, err := utils.GenerateConfirmationCode()
			if err != nil {
				return err
			}
			ticket := &models.UserTicket{
				EventID:          session.EventID,
				TicketTypeID:     item.TicketTypeID,
				UserID:           session.UserID,
				OrderID:          orderID,
				Quantity:         item.Quantity,
				TicketNumber:     number,
				ConfirmationCode: code,
				Status:           models.TicketValid,
				PurchasedAt:      now,
			}
			if err := tx.SaveTicket(ctx, ticket); err != nil {
				return err
			}
			tickets = append(tickets, ticket)
		}
		return nil
	})
	if err != nil {
		if status.IsOversell(err) {
			p.monitor.TrackPurchase(eventID, "oversell")
		} else {
			p.monitor.TrackPurchase(eventID, "error")
		}
		if errors.Is(err, status.ErrSessionExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("purchase %s: %w", orderID, err)
	}

	p.monitor.TrackPurchase(eventID, "success")
	p.notifier.PurchaseComplete(userID, eventID, orderID)

	// The freed slot goes to the next waiter right away.
	if _, err := p.admission.FillSlots(ctx, eventID); err != nil {
		slog.Error("fill slots after purchase", "event", eventID, "error", err)
	}

	return &PurchaseResult{OrderID: orderID, Amount: amount, Tickets: tickets}, nil
}
