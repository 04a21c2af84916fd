package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpit/internal/status"
)

func TestStartCheckoutRequiresAdmission(t *testing.T) {
	cfg := testConfig()
	cfg.CheckoutLimit = 0
	p := newPipeline(cfg)
	ctx := context.Background()

	eventID, _, err := p.seedEvent(ctx, 100, 100, "25.00")
	require.NoError(t, err)

	_, err = p.sequencer.Join(ctx, eventID, userID(1))
	require.NoError(t, err)
	_, err = p.sequencer.Join(ctx, eventID, userID(2))
	require.NoError(t, err)

	_, err = p.checkout.StartCheckout(ctx, eventID, userID(2))
	var qErr *status.QueueError
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, status.ReasonNotAdmitted, qErr.Reason)
	assert.Equal(t, 1, qErr.Position)
}

func TestStartCheckoutNotInQueue(t *testing.T) {
	p := newPipeline(testConfig())
	ctx := context.Background()

	eventID, _, err := p.seedEvent(ctx, 100, 100, "25.00")
	require.NoError(t, err)

	_, err = p.checkout.StartCheckout(ctx, eventID, userID(1))
	var qErr *status.QueueError
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, status.ReasonNotInQueue, qErr.Reason)
}

func TestStartCheckoutIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.CheckoutLimit = 1
	p := newPipeline(cfg)
	ctx := context.Background()

	eventID, _, err := p.seedEvent(ctx, 100, 100, "25.00")
	require.NoError(t, err)

	_, err = p.sequencer.Join(ctx, eventID, userID(1))
	require.NoError(t, err)

	first, err := p.checkout.StartCheckout(ctx, eventID, userID(1))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, p.clock.Now().Add(cfg.CheckoutExpiry), first.ExpiresAt)

	second, err := p.checkout.StartCheckout(ctx, eventID, userID(1))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}
