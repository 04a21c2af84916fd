package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpit/models"
)

func TestSweepExpiresOverdueWaiters(t *testing.T) {
	cfg := testConfig()
	cfg.CheckoutLimit = 0
	p := newPipeline(cfg)
	ctx := context.Background()

	eventID, _, err := p.seedEvent(ctx, 100, 100, "25.00")
	require.NoError(t, err)

	_, err = p.sequencer.Join(ctx, eventID, userID(1))
	require.NoError(t, err)

	// Not yet due: sweeping changes nothing.
	p.clock.Advance(cfg.QueueExpiry - time.Minute)
	require.NoError(t, p.reaper.Sweep(ctx))
	entry, err := p.store.LatestQueueEntry(ctx, eventID, userID(1))
	require.NoError(t, err)
	assert.Equal(t, models.QueueWaiting, entry.Status)

	p.clock.Advance(2 * time.Minute)
	require.NoError(t, p.reaper.Sweep(ctx))

	entry, err = p.store.LatestQueueEntry(ctx, eventID, userID(1))
	require.NoError(t, err)
	assert.Equal(t, models.QueueExpired, entry.Status)
	assert.Equal(t, p.clock.Now().Add(cfg.QueueCooldown), entry.CooldownUntil)
}

func TestSweepReclaimsAdmittedSlot(t *testing.T) {
	cfg := testConfig()
	cfg.CheckoutLimit = 1
	p := newPipeline(cfg)
	ctx := context.Background()

	eventID, _, err := p.seedEvent(ctx, 100, 100, "25.00")
	require.NoError(t, err)

	_, err = p.sequencer.Join(ctx, eventID, userID(1))
	require.NoError(t, err)
	_, err = p.sequencer.Join(ctx, eventID, userID(2))
	require.NoError(t, err)

	// The admitted user never starts checkout; their window lapses.
	p.clock.Advance(cfg.CheckoutExpiry + time.Minute)
	require.NoError(t, p.reaper.Sweep(ctx))

	first, err := p.store.LatestQueueEntry(ctx, eventID, userID(1))
	require.NoError(t, err)
	assert.Equal(t, models.QueueExpired, first.Status)

	second, err := p.store.LiveQueueEntry(ctx, eventID, userID(2))
	require.NoError(t, err)
	assert.Equal(t, models.QueueAdmitted, second.Status)

	event, err := p.store.Event(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, event.AdmittedSlots)
}

func TestSweepClosesAbandonedSessions(t *testing.T) {
	cfg := testConfig()
	cfg.CheckoutLimit = 1
	p := newPipeline(cfg)
	ctx := context.Background()

	eventID, _, err := p.seedEvent(ctx, 100, 100, "25.00")
	require.NoError(t, err)

	_, err = p.sequencer.Join(ctx, eventID, userID(1))
	require.NoError(t, err)
	session, err := p.checkout.StartCheckout(ctx, eventID, userID(1))
	require.NoError(t, err)

	p.clock.Advance(cfg.CheckoutExpiry + time.Minute)
	require.NoError(t, p.reaper.Sweep(ctx))

	stored, err := p.store.Session(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, stored.Consumed)

	entry, err := p.store.LatestQueueEntry(ctx, eventID, userID(1))
	require.NoError(t, err)
	assert.Equal(t, models.QueueExpired, entry.Status)

	event, err := p.store.Event(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 0, event.AdmittedSlots)
}

func TestSweepIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.CheckoutLimit = 0
	p := newPipeline(cfg)
	ctx := context.Background()

	eventID, _, err := p.seedEvent(ctx, 100, 100, "25.00")
	require.NoError(t, err)

	_, err = p.sequencer.Join(ctx, eventID, userID(1))
	require.NoError(t, err)

	p.clock.Advance(cfg.QueueExpiry + time.Minute)
	require.NoError(t, p.reaper.Sweep(ctx))

	first, err := p.store.LatestQueueEntry(ctx, eventID, userID(1))
	require.NoError(t, err)

	p.clock.Advance(time.Minute)
	require.NoError(t, p.reaper.Sweep(ctx))

	again, err := p.store.LatestQueueEntry(ctx, eventID, userID(1))
	require.NoError(t, err)
	assert.Equal(t, first.Status, again.Status)
	assert.Equal(t, first.CooldownUntil, again.CooldownUntil)
}
