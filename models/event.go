package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SaleUpcoming  = "upcoming"
	SaleOnSale    = "on_sale"
	SaleSoldOut   = "sold_out"
	SaleCancelled = "cancelled"
)

type Event struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Capacity      int       `json:"capacity"`
	TicketsSold   int       `json:"tickets_sold"`
	AdmittedSlots int       `json:"admitted_slots"`
	SaleStartAt   time.Time `json:"sale_start_at"`
	SaleEndAt     time.Time `json:"sale_end_at"`
	SaleStatus    string    `json:"sale_status"` // upcoming, on_sale, sold_out, cancelled
}

func (e *Event) Remaining() int {
	return e.Capacity - e.TicketsSold
}

// Purchasable reports whether the event accepts purchases at the given
// instant. The sale window is checked in addition to the status so a
// record left in on_sale past its end date does not keep selling.
func (e *Event) Purchasable(now time.Time) bool {
	if e.SaleStatus != SaleOnSale {
		return false
	}
	if !e.SaleStartAt.IsZero() && now.Before(e.SaleStartAt) {
		return false
	}
	if !e.SaleEndAt.IsZero() && now.After(e.SaleEndAt) {
		return false
	}
	return true
}

type TicketType struct {
	ID           string          `json:"id"`
	EventID      string          `json:"event_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	QuantitySold int             `json:"quantity_sold"`
	SaleStartAt  time.Time       `json:"sale_start_at"`
	SaleEndAt    time.Time       `json:"sale_end_at"`
}

func (t *TicketType) Remaining() int {
	return t.Quantity - t.QuantitySold
}
