package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpit/internal/status"
	"fanpit/models"
)

func TestMemStoreTransactionRollsBack(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	event := &models.Event{Name: "A", Capacity: 10, SaleStatus: models.SaleOnSale}
	require.NoError(t, s.SaveEvent(ctx, event))

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx Store) error {
		loaded, err := tx.Event(ctx, event.ID)
		if err != nil {
			return err
		}
		loaded.TicketsSold = 5
		if err := tx.SaveEvent(ctx, loaded); err != nil {
			return err
		}
		if _, err := tx.NextSeq(ctx, event.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	loaded, err := s.Event(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.TicketsSold)

	// The seq bump rolled back too.
	seq, err := s.NextSeq(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestMemStoreNestedTransactionJoinsOuter(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	event := &models.Event{Name: "A", Capacity: 10}
	require.NoError(t, s.SaveEvent(ctx, event))

	err := s.RunInTransaction(ctx, func(tx Store) error {
		return tx.RunInTransaction(ctx, func(inner Store) error {
			loaded, err := inner.Event(ctx, event.ID)
			if err != nil {
				return err
			}
			loaded.TicketsSold = 3
			return inner.SaveEvent(ctx, loaded)
		})
	})
	require.NoError(t, err)

	loaded, err := s.Event(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.TicketsSold)
}

func TestMemStoreNextSeqIsMonotonic(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := s.NextSeq(ctx, "evt")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Counters are per event.
	got, err := s.NextSeq(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestMemStoreLookupConventions(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, err := s.Event(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrNotFound)

	entry, err := s.LiveQueueEntry(ctx, "evt", "usr")
	require.NoError(t, err)
	assert.Nil(t, entry)

	session, err := s.ActiveSession(ctx, "evt", "usr", time.Now())
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestMemStoreWaitingEntriesOrderedBySeq(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for _, seq := range []int64{3, 1, 2} {
		require.NoError(t, s.SaveQueueEntry(ctx, &models.QueueEntry{
			EventID: "evt",
			UserID:  fmt.Sprintf("user-%d", seq),
			Seq:     seq,
			Status:  models.QueueWaiting,
		}))
	}
	require.NoError(t, s.SaveQueueEntry(ctx, &models.QueueEntry{
		EventID: "evt", UserID: "done", Seq: 4, Status: models.QueuePurchased,
	}))

	waiting, err := s.WaitingEntries(ctx, "evt")
	require.NoError(t, err)
	require.Len(t, waiting, 3)
	for i, entry := range waiting {
		assert.Equal(t, int64(i+1), entry.Seq)
	}
}

func TestMemStoreReturnsCopies(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	event := &models.Event{Name: "A", Capacity: 10}
	require.NoError(t, s.SaveEvent(ctx, event))

	loaded, err := s.Event(ctx, event.ID)
	require.NoError(t, err)
	loaded.Capacity = 999

	reloaded, err := s.Event(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.Capacity)
}
