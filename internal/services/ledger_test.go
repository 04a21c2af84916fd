package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpit/internal/status"
	"fanpit/internal/store"
	"fanpit/models"
)

func TestReserveAndDeductUpdatesCountersAndLedger(t *testing.T) {
	p := newPipeline(testConfig())
	ctx := context.Background()

	eventID, ttID, err := p.seedEvent(ctx, 100, 50, "25.00")
	require.NoError(t, err)

	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		return p.ledger.ReserveAndDeduct(ctx, tx, eventID, "order-1", []LineItem{
			{TicketTypeID: ttID, Quantity: 3},
		})
	})
	require.NoError(t, err)

	tt, err := p.store.TicketType(ctx, ttID)
	require.NoError(t, err)
	assert.Equal(t, 3, tt.QuantitySold)

	event, err := p.store.Event(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 3, event.TicketsSold)
	assert.Equal(t, models.SaleOnSale, event.SaleStatus)

	balance, err := p.store.LedgerBalance(ctx, ttID)
	require.NoError(t, err)
	assert.Equal(t, 3, balance)

	consistent, err := p.ledger.Reconcile(ctx, p.store, ttID)
	require.NoError(t, err)
	assert.True(t, consistent)
}

func TestReserveAndDeductRejectsOversell(t *testing.T) {
	p := newPipeline(testConfig())
	ctx := context.Background()

	eventID, ttID, err := p.seedEvent(ctx, 100, 2, "25.00")
	require.NoError(t, err)

	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		return p.ledger.ReserveAndDeduct(ctx, tx, eventID, "order-1", []LineItem{
			{TicketTypeID: ttID, Quantity: 3},
		})
	})
	var oErr *status.OversellError
	require.True(t, errors.As(err, &oErr))
	assert.Equal(t, ttID, oErr.TicketTypeID)
	assert.Equal(t, 3, oErr.Requested)
	assert.Equal(t, 2, oErr.Available)

	// Nothing moved.
	tt, err := p.store.TicketType(ctx, ttID)
	require.NoError(t, err)
	assert.Equal(t, 0, tt.QuantitySold)
	balance, err := p.store.LedgerBalance(ctx, ttID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestReserveAndDeductHonorsEventCapacity(t *testing.T) {
	p := newPipeline(testConfig())
	ctx := context.Background()

	eventID, ttID, err := p.seedEvent(ctx, 6, 5, "25.00")
	require.NoError(t, err)

	other := &models.TicketType{EventID: eventID, Name: "VIP", Quantity: 5}
	require.NoError(t, p.store.SaveTicketType(ctx, other))

	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		return p.ledger.ReserveAndDeduct(ctx, tx, eventID, "order-1", []LineItem{
			{TicketTypeID: ttID, Quantity: 4},
			{TicketTypeID: other.ID, Quantity: 4},
		})
	})
	var oErr *status.OversellError
	require.True(t, errors.As(err, &oErr))
	assert.Equal(t, eventID, oErr.TicketTypeID)
	assert.Equal(t, 8, oErr.Requested)
	assert.Equal(t, 6, oErr.Available)
}

func TestReserveAndDeductRejectsForeignTicketType(t *testing.T) {
	p := newPipeline(testConfig())
	ctx := context.Background()

	eventID, _, err := p.seedEvent(ctx, 100, 50, "25.00")
	require.NoError(t, err)
	_, otherTT, err := p.seedEvent(ctx, 100, 50, "30.00")
	require.NoError(t, err)

	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		return p.ledger.ReserveAndDeduct(ctx, tx, eventID, "order-1", []LineItem{
			{TicketTypeID: otherTT, Quantity: 1},
		})
	})
	var vErr *status.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "ticket_type_id", vErr.Field)
}

func TestRestockReversesDeduction(t *testing.T) {
	p := newPipeline(testConfig())
	ctx := context.Background()

	eventID, ttID, err := p.seedEvent(ctx, 2, 2, "25.00")
	require.NoError(t, err)

	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		return p.ledger.ReserveAndDeduct(ctx, tx, eventID, "order-1", []LineItem{
			{TicketTypeID: ttID, Quantity: 2},
		})
	})
	require.NoError(t, err)

	event, err := p.store.Event(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleSoldOut, event.SaleStatus)

	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		return p.ledger.Restock(ctx, tx, eventID, "order-1", []LineItem{
			{TicketTypeID: ttID, Quantity: 2},
		})
	})
	require.NoError(t, err)

	event, err = p.store.Event(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 0, event.TicketsSold)
	assert.Equal(t, models.SaleOnSale, event.SaleStatus)

	tt, err := p.store.TicketType(ctx, ttID)
	require.NoError(t, err)
	assert.Equal(t, 0, tt.QuantitySold)

	// Both movements stay on the ledger; they just cancel out.
	balance, err := p.store.LedgerBalance(ctx, ttID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	consistent, err := p.ledger.Reconcile(ctx, p.store, ttID)
	require.NoError(t, err)
	assert.True(t, consistent)
}

func TestRestockRejectsMoreThanSold(t *testing.T) {
	p := newPipeline(testConfig())
	ctx := context.Background()

	eventID, ttID, err := p.seedEvent(ctx, 100, 50, "25.00")
	require.NoError(t, err)

	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		return p.ledger.Restock(ctx, tx, eventID, "order-1", []LineItem{
			{TicketTypeID: ttID, Quantity: 1},
		})
	})
	var vErr *status.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "quantity", vErr.Field)
}

func TestReserveAndDeductMergesRepeatedLines(t *testing.T) {
	p := newPipeline(testConfig())
	ctx := context.Background()

	eventID, ttID, err := p.seedEvent(ctx, 100, 5, "25.00")
	require.NoError(t, err)

	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		return p.ledger.ReserveAndDeduct(ctx, tx, eventID, "order-1", []LineItem{
			{TicketTypeID: ttID, Quantity: 2},
			{TicketTypeID: ttID, Quantity: 1},
		})
	})
	require.NoError(t, err)

	tt, err := p.store.TicketType(ctx, ttID)
	require.NoError(t, err)
	assert.Equal(t, 3, tt.QuantitySold)

	balance, err := p.store.LedgerBalance(ctx, ttID)
	require.NoError(t, err)
	assert.Equal(t, 3, balance)

	consistent, err := p.ledger.Reconcile(ctx, p.store, ttID)
	require.NoError(t, err)
	assert.True(t, consistent)
}

func TestReserveAndDeductRejectsRepeatedLinesOverStock(t *testing.T) {
	p := newPipeline(testConfig())
	ctx := context.Background()

	// Two lines for the same type must be checked against the summed
	// quantity, not each against the pre-deduction count.
	eventID, ttID, err := p.seedEvent(ctx, 100, 1, "25.00")
	require.NoError(t, err)

	err = p.store.RunInTransaction(ctx, func(tx store.Store) error {
		return p.ledger.ReserveAndDeduct(ctx, tx, eventID, "order-1", []LineItem{
			{TicketTypeID: ttID, Quantity: 1},
			{TicketTypeID: ttID, Quantity: 1},
		})
	})
	var oErr *status.OversellError
	require.True(t, errors.As(err, &oErr))
	assert.Equal(t, 2, oErr.Requested)
	assert.Equal(t, 1, oErr.Available)

	tt, err := p.store.TicketType(ctx, ttID)
	require.NoError(t, err)
	assert.Equal(t, 0, tt.QuantitySold)

	event, err := p.store.Event(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 0, event.TicketsSold)
}
