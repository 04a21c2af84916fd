package models

import (
	"time"
)

const (
	TicketValid     = "valid"
	TicketUsed      = "used"
	TicketCancelled = "cancelled"
)

// UserTicket is created only by a successful purchase transaction and is
// immutable afterwards except for check-in / cancellation status changes.
type UserTicket struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id"`
	TicketTypeID     string    `json:"ticket_type_id"`
	UserID           string    `json:"user_id"`
	OrderID          string    `json:"order_id"`
	Quantity         int       `json:"quantity"`
	TicketNumber     string    `json:"ticket_number"`
	ConfirmationCode string    `json:"confirmation_code"`
	Status           string    `json:"status"` // valid, used, cancelled
	PurchasedAt      time.Time `json:"purchased_at"`
}

const (
	LedgerReasonPurchase = "purchase"
	LedgerReasonRestock  = "restock"
)

// InventoryLedgerEntry is an append-only audit row. Rows are never
// mutated or deleted; current stock can be reconstructed from them
// independently of the mutable counters.
type InventoryLedgerEntry struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"` // ticket type (or merch variant) id
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	OrderID   string    `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}
