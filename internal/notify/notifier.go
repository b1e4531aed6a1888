// Package notify publishes settlement events to interested clients.
// Everything here is best-effort: a failed publish is logged and never
// propagates into the operation that triggered it.
package notify

import (
	"log/slog"

	pubnub "github.com/pubnub/go"
)

type Notifier struct {
	pubnub *pubnub.PubNub
}

func New(pn *pubnub.PubNub) *Notifier {
	return &Notifier{pubnub: pn}
}

// PaymentStatusChanged tells the attendance channel about a transition.
func (n *Notifier) PaymentStatusChanged(attendanceID, paymentID, newStatus string, version int64) {
	n.publish("attendance-"+attendanceID, map[string]any{
		"type":       "payment_status",
		"payment_id": paymentID,
		"status":     newStatus,
		"version":    version,
	})
}

// PayoutStatusChanged tells the organizer channel about a settlement
// update.
func (n *Notifier) PayoutStatusChanged(organizerID, payoutID, newStatus string) {
	n.publish("organizer-"+organizerID, map[string]any{
		"type":      "payout_status",
		"payout_id": payoutID,
		"status":    newStatus,
	})
}

func (n *Notifier) publish(channel string, message map[string]any) {
	if n == nil || n.pubnub == nil {
		return
	}
	go func() {
		_, _, err := n.pubnub.Publish().
			Channel(channel).
			Message(message).
			Execute()
		if err != nil {
			slog.Warn("notification publish failed", "channel", channel, "error", err)
		}
	}()
}
