package status

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound       = errors.New("status: record not found")
	ErrSessionExpired = errors.New("checkout: session expired or already consumed")

	// ErrConflict marks a lost race for the last admission slot or unit
	// of stock. Callers may retry.
	ErrConflict = errors.New("status: conflicting concurrent update")
)

// QueueError reasons.
const (
	ReasonNotInQueue  = "not_in_queue"
	ReasonInCooldown  = "in_cooldown"
	ReasonNotAdmitted = "not_admitted"
)

type QueueError struct {
	Reason        string
	CooldownUntil time.Time
	Position      int
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue: %s", e.Reason)
}

func NewQueueError(reason string) *QueueError {
	return &QueueError{Reason: reason, Position: -1}
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

type OversellError struct {
	TicketTypeID string
	Requested    int
	Available    int
}

func (e *OversellError) Error() string {
	return fmt.Sprintf("inventory: ticket type %s has %d left, %d requested",
		e.TicketTypeID, e.Available, e.Requested)
}

// IsOversell reports whether err is (or wraps) an OversellError.
func IsOversell(err error) bool {
	var oe *OversellError
	return errors.As(err, &oe)
}
