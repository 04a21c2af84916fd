package services

import (
	"context"
	"fmt"
	"time"

	"fanpit/config"
	"fanpit/internal/services/settlement"
	"fanpit/internal/store"
	"fanpit/models"

	"github.com/shopspring/decimal"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func testConfig() *config.Config {
	return &config.Config{
		CheckoutLimit:          10,
		QueueExpiry:            30 * time.Minute,
		CheckoutExpiry:         10 * time.Minute,
		QueueCooldown:          5 * time.Minute,
		ReaperInterval:         15 * time.Second,
		PositionUpdateInterval: 2 * time.Second,
		PositionCacheTTL:       15 * time.Second,
		SettlementTimeout:      15 * time.Second,
	}
}

// pipeline wires every service over a MemStore with a shared fake clock.
type pipeline struct {
	store     *store.MemStore
	clock     *fakeClock
	admission *Admission
	sequencer *Sequencer
	checkout  *Checkout
	ledger    *Ledger
	purchaser *Purchaser
	reaper    *Reaper
}

func newPipeline(cfg *config.Config) *pipeline {
	st := store.NewMemStore()
	clock := newFakeClock()
	notifier := NewNotifier(nil)

	admission := NewAdmission(st, cfg, nil, notifier)
	admission.now = clock.Now

	sequencer := NewSequencer(st, nil, admission, cfg, nil, notifier)
	sequencer.now = clock.Now

	checkout := NewCheckout(st, cfg, nil)
	checkout.now = clock.Now

	ledger := NewLedger(nil)
	ledger.now = clock.Now

	purchaser := NewPurchaser(st, ledger, admission, settlement.Auto{}, notifier, nil)
	purchaser.now = clock.Now

	reaper := NewReaper(st, nil, admission, cfg, nil, notifier)
	reaper.now = clock.Now

	return &pipeline{
		store:     st,
		clock:     clock,
		admission: admission,
		sequencer: sequencer,
		checkout:  checkout,
		ledger:    ledger,
		purchaser: purchaser,
		reaper:    reaper,
	}
}

// seedEvent creates an on-sale event with one ticket type and returns
// both ids.
func (p *pipeline) seedEvent(ctx context.Context, capacity, quantity int, price string) (string, string, error) {
	event := &models.Event{
		Name:       "Test Event",
		Capacity:   capacity,
		SaleStatus: models.SaleOnSale,
	}
	if err := p.store.SaveEvent(ctx, event); err != nil {
		return "", "", err
	}
	tt := &models.TicketType{
		EventID:  event.ID,
		Name:     "General",
		Price:    decimal.RequireFromString(price),
		Quantity: quantity,
	}
	if err := p.store.SaveTicketType(ctx, tt); err != nil {
		return "", "", err
	}
	return event.ID, tt.ID, nil
}

func userID(i int) string {
	return fmt.Sprintf("user-%03d", i)
}
