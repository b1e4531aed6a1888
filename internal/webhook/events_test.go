package webhook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func rawEvent(t *testing.T, id, eventType, payload string) *stripe.Event {
	t.Helper()
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(payload)},
	}
}

func TestDecode_PaymentIntentSucceeded(t *testing.T) {
	ev, err := Decode(rawEvent(t, "evt_1", "payment_intent.succeeded",
		`{"id":"pi_123","metadata":{"payment_id":"pay_42"}}`))
	require.NoError(t, err)

	require.NotNil(t, ev.PaymentSucceeded)
	assert.Equal(t, "pay_42", ev.PaymentSucceeded.PaymentID)
	assert.Equal(t, "pi_123", ev.PaymentSucceeded.IntentID)
	assert.Equal(t, "evt_1", ev.ProviderEventID)
	assert.False(t, ev.Unknown)
}

func TestDecode_PaymentIntentFailed(t *testing.T) {
	ev, err := Decode(rawEvent(t, "evt_2", "payment_intent.payment_failed",
		`{"id":"pi_124","metadata":{"payment_id":"pay_43"}}`))
	require.NoError(t, err)

	require.NotNil(t, ev.PaymentFailed)
	assert.Equal(t, "pay_43", ev.PaymentFailed.PaymentID)
	assert.Nil(t, ev.PaymentSucceeded)
}

func TestDecode_IntentWithoutMetadataIsIgnored(t *testing.T) {
	// Intents created outside this engine carry no payment_id.
	ev, err := Decode(rawEvent(t, "evt_3", "payment_intent.succeeded", `{"id":"pi_999"}`))
	require.NoError(t, err)
	assert.True(t, ev.Unknown)
	assert.Nil(t, ev.PaymentSucceeded)
}

func TestDecode_ChargeRefunded(t *testing.T) {
	ev, err := Decode(rawEvent(t, "evt_4", "charge.refunded",
		`{"id":"ch_1","payment_intent":"pi_123","metadata":{"payment_id":"pay_42"}}`))
	require.NoError(t, err)

	require.NotNil(t, ev.PaymentRefunded)
	assert.Equal(t, "pay_42", ev.PaymentRefunded.PaymentID)
	assert.Equal(t, "pi_123", ev.PaymentRefunded.IntentID)
}

func TestDecode_ChargeRefundedFallsBackToIntentID(t *testing.T) {
	ev, err := Decode(rawEvent(t, "evt_5", "charge.refunded",
		`{"id":"ch_2","payment_intent":"pi_777"}`))
	require.NoError(t, err)

	require.NotNil(t, ev.PaymentRefunded)
	assert.Empty(t, ev.PaymentRefunded.PaymentID)
	assert.Equal(t, "pi_777", ev.PaymentRefunded.IntentID)
}

func TestDecode_AccountUpdated(t *testing.T) {
	ev, err := Decode(rawEvent(t, "evt_6", "account.updated",
		`{
			"id": "acct_1",
			"details_submitted": true,
			"charges_enabled": true,
			"payouts_enabled": false,
			"capabilities": {"card_payments": "active", "transfers": "pending"},
			"requirements": {"currently_due": ["external_account"], "disabled_reason": ""}
		}`))
	require.NoError(t, err)

	require.NotNil(t, ev.AccountUpdated)
	assert.Equal(t, "acct_1", ev.AccountUpdated.AccountID)
	assert.True(t, ev.AccountUpdated.DetailsSubmitted)
	assert.False(t, ev.AccountUpdated.PayoutsEnabled)
	assert.Equal(t, "pending", ev.AccountUpdated.Transfers)
	assert.Equal(t, []string{"external_account"}, ev.AccountUpdated.CurrentlyDue)
}

func TestDecode_TransferEvents(t *testing.T) {
	created, err := Decode(rawEvent(t, "evt_7", "transfer.created",
		`{"id":"tr_1","metadata":{"payout_id":"po_9"}}`))
	require.NoError(t, err)
	require.NotNil(t, created.TransferCreated)
	assert.Equal(t, "po_9", created.TransferCreated.PayoutID)
	assert.Equal(t, "tr_1", created.TransferCreated.TransferID)

	reversed, err := Decode(rawEvent(t, "evt_8", "transfer.reversed",
		`{"id":"tr_1","metadata":{"payout_id":"po_9"}}`))
	require.NoError(t, err)
	require.NotNil(t, reversed.TransferReversed)

	// A transfer created by some other tool is not ours to track.
	foreign, err := Decode(rawEvent(t, "evt_9", "transfer.created", `{"id":"tr_2"}`))
	require.NoError(t, err)
	assert.True(t, foreign.Unknown)
}

func TestDecode_UnknownTypeIsNoOp(t *testing.T) {
	ev, err := Decode(rawEvent(t, "evt_10", "customer.created", `{"id":"cus_1"}`))
	require.NoError(t, err)
	assert.True(t, ev.Unknown)
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode(rawEvent(t, "evt_11", "payment_intent.succeeded", `{not json`))
	require.Error(t, err)
}
