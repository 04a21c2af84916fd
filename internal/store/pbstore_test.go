package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBusyMatchesSQLiteLockErrors(t *testing.T) {
	assert.True(t, isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isBusy(errors.New("database table is locked: event_queue")))

	assert.False(t, isBusy(nil))
	assert.False(t, isBusy(errors.New("UNIQUE constraint failed: event_queue.id")))
}
