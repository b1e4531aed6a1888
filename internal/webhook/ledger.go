package webhook

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"

	"event-settlement/internal/status"
	"event-settlement/models"
)

// Ledger is the durable side of webhook deduplication. A row is written
// only after the event's effect has committed, so presence of a row
// means the work is done.
type Ledger struct {
	db dbx.Builder
}

func NewLedger(db dbx.Builder) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Seen(ctx context.Context, providerEventID string) (bool, error) {
	var row models.WebhookEvent
	err := l.db.Select("id").
		From("webhook_events").
		Where(dbx.HashExp{"provider_event_id": providerEventID}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, status.Wrap(status.CodeDatabase, "check webhook ledger", err)
	}
	return true, nil
}

func (l *Ledger) Record(ctx context.Context, providerEventID, eventType, paymentID, payoutID string) error {
	now := time.Now().UTC()
	_, err := l.db.Insert("webhook_events", dbx.Params{
		"id":                uuid.NewString(),
		"provider_event_id": providerEventID,
		"event_type":        eventType,
		"payment_id":        paymentID,
		"payout_id":         payoutID,
		"processed_at":      now,
		"created_at":        now,
	}).WithContext(ctx).Execute()
	if err != nil {
		// Concurrent delivery of the same event can race past the
		// Seen check; the unique index makes the second writer lose,
		// which is the outcome we want.
		return status.Wrap(status.CodeDatabase, "record webhook event", err)
	}
	return nil
}
