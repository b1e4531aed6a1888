package models

import "time"

// WebhookEvent is one row of the idempotency ledger. A row exists only
// for events whose effect has durably committed; redelivery of the same
// provider event id is then skipped.
type WebhookEvent struct {
	ID              string    `db:"id" json:"id"`
	ProviderEventID string    `db:"provider_event_id" json:"provider_event_id"`
	EventType       string    `db:"event_type" json:"event_type"`
	PaymentID       string    `db:"payment_id" json:"payment_id,omitempty"`
	PayoutID        string    `db:"payout_id" json:"payout_id,omitempty"`
	ProcessedAt     time.Time `db:"processed_at" json:"processed_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
