package webhook

import (
	"encoding/json"

	"github.com/stripe/stripe-go/v82"

	"event-settlement/internal/provider"
	"event-settlement/internal/status"
)

// Event is the decoded form of one provider delivery. Exactly one of
// the pointer fields is set; Unknown deliveries carry only the type.
type Event struct {
	ProviderEventID string
	Type            string

	PaymentSucceeded *PaymentSignal
	PaymentFailed    *PaymentSignal
	PaymentRefunded  *PaymentSignal
	AccountUpdated   *provider.AccountSnapshot
	TransferCreated  *TransferSignal
	TransferReversed *TransferSignal
	Unknown          bool
}

// PaymentSignal identifies the payment a lifecycle event is about. The
// business key travels in metadata; the intent id is kept for the
// payment record and for no-op detection on redelivery.
type PaymentSignal struct {
	PaymentID string
	IntentID  string
}

type TransferSignal struct {
	PayoutID   string
	TransferID string
}

// Decode maps a verified provider event onto the engine's vocabulary.
// Types the engine does not react to come back as Unknown, which the
// gate acknowledges without doing any work.
func Decode(raw *stripe.Event) (*Event, error) {
	ev := &Event{
		ProviderEventID: raw.ID,
		Type:            string(raw.Type),
	}

	switch raw.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &intent); err != nil {
			return nil, status.Wrap(status.CodeValidation, "malformed payment_intent payload", err)
		}
		signal := &PaymentSignal{
			PaymentID: intent.Metadata["payment_id"],
			IntentID:  intent.ID,
		}
		if signal.PaymentID == "" {
			// An intent without our metadata was not created by this
			// engine. Acknowledge and move on.
			ev.Unknown = true
			return ev, nil
		}
		if raw.Type == "payment_intent.succeeded" {
			ev.PaymentSucceeded = signal
		} else {
			ev.PaymentFailed = signal
		}

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(raw.Data.Raw, &charge); err != nil {
			return nil, status.Wrap(status.CodeValidation, "malformed charge payload", err)
		}
		signal := &PaymentSignal{PaymentID: charge.Metadata["payment_id"]}
		if charge.PaymentIntent != nil {
			signal.IntentID = charge.PaymentIntent.ID
		}
		if signal.PaymentID == "" && signal.IntentID == "" {
			ev.Unknown = true
			return ev, nil
		}
		ev.PaymentRefunded = signal

	case "account.updated":
		var acct stripe.Account
		if err := json.Unmarshal(raw.Data.Raw, &acct); err != nil {
			return nil, status.Wrap(status.CodeValidation, "malformed account payload", err)
		}
		ev.AccountUpdated = provider.SnapshotFromAccount(&acct)

	case "transfer.created", "transfer.reversed":
		var tr stripe.Transfer
		if err := json.Unmarshal(raw.Data.Raw, &tr); err != nil {
			return nil, status.Wrap(status.CodeValidation, "malformed transfer payload", err)
		}
		signal := &TransferSignal{
			PayoutID:   tr.Metadata["payout_id"],
			TransferID: tr.ID,
		}
		if signal.PayoutID == "" {
			ev.Unknown = true
			return ev, nil
		}
		if raw.Type == "transfer.created" {
			ev.TransferCreated = signal
		} else {
			ev.TransferReversed = signal
		}

	default:
		ev.Unknown = true
	}

	return ev, nil
}
