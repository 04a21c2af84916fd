package services

import (
	"fmt"

	pubnub "github.com/pubnub/go"
)

// Notifier pushes queue and purchase updates to per-user PubNub channels.
// Push delivery is best-effort; clients that do not subscribe simply poll
// the queue state endpoint instead. A nil Notifier drops everything.
type Notifier struct {
	pubnub *pubnub.PubNub
}

func NewNotifier(pn *pubnub.PubNub) *Notifier {
	if pn == nil {
		return nil
	}
	return &Notifier{pubnub: pn}
}

func (n *Notifier) publish(userID string, message map[string]any) {
	if n == nil {
		return
	}
	channel := fmt.Sprintf("user-%s", userID)
	n.pubnub.Publish().
		Channel(channel).
		Message(message).
		Execute()
}

func (n *Notifier) QueuePosition(userID, eventID string, position int) {
	message := fmt.Sprintf("You are #%d in line", position+1)
	if position == 0 {
		message = "You're next!"
	}

	n.publish(userID, map[string]any{
		"type":     "queue_position",
		"position": position,
		"event_id": eventID,
		"message":  message,
	})
}

func (n *Notifier) Admitted(userID, eventID, sessionDeadline string) {
	n.publish(userID, map[string]any{
		"type":       "queue_status",
		"status":     "admitted",
		"event_id":   eventID,
		"expires_at": sessionDeadline,
		"message":    "You can now start checkout!",
	})
}

func (n *Notifier) Expired(userID, eventID string) {
	n.publish(userID, map[string]any{
		"type":     "queue_status",
		"status":   "expired",
		"event_id": eventID,
		"message":  "Your spot has timed out. Please rejoin the queue.",
	})
}

func (n *Notifier) PurchaseComplete(userID, eventID, orderID string) {
	n.publish(userID, map[string]any{
		"type":     "purchase_complete",
		"event_id": eventID,
		"order_id": orderID,
	})
}

// ShouldNotifyPosition throttles position pushes: users near the front
// hear about every move, users far back only on round numbers.
func ShouldNotifyPosition(position int) bool {
	switch {
	case position < 5:
		return true
	case position < 20:
		return position%2 == 0
	case position < 100:
		return position%10 == 0
	default:
		return position%50 == 0
	}
}
