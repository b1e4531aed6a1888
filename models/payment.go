package models

import (
	"time"
)

// PaymentMethod is fixed at creation and never changes.
type PaymentMethod string

const (
	MethodOnline PaymentMethod = "online"
	MethodCash   PaymentMethod = "cash"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentReceived  PaymentStatus = "received"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentWaived    PaymentStatus = "waived"
	PaymentCompleted PaymentStatus = "completed"
)

// Completed reports whether the status represents money that has been
// settled one way or another. A completed row blocks any new checkout
// session for the same attendance.
func (s PaymentStatus) Completed() bool {
	switch s {
	case PaymentPaid, PaymentReceived, PaymentRefunded, PaymentWaived, PaymentCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is legal except the
// refund path out of paid/completed.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentReceived, PaymentRefunded, PaymentWaived:
		return true
	}
	return false
}

// Payment is one attendee's obligation for one event attendance.
// Amount is in minor currency units. Version is the optimistic lock:
// it starts at 1 and increments by exactly one on every accepted
// status mutation.
type Payment struct {
	ID                string        `db:"id" json:"id"`
	AttendanceID      string        `db:"attendance_id" json:"attendance_id"`
	EventID           string        `db:"event_id" json:"event_id"`
	OrganizerID       string        `db:"organizer_id" json:"organizer_id"`
	Method            PaymentMethod `db:"method" json:"method"`
	Amount            int64         `db:"amount" json:"amount"`
	Status            PaymentStatus `db:"status" json:"status"`
	Version           int64         `db:"version" json:"version"`
	ProviderIntentID  string        `db:"provider_intent_id" json:"provider_intent_id,omitempty"`
	ProviderSessionID string        `db:"provider_session_id" json:"provider_session_id,omitempty"`
	PayoutID          string        `db:"payout_id" json:"payout_id,omitempty"`
	GuestTokenHash    string        `db:"guest_token_hash" json:"-"`
	PaidAt            *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// EffectiveTime orders competing rows for one attendance: paid_at when
// set, else updated_at, else created_at.
func (p *Payment) EffectiveTime() time.Time {
	if p.PaidAt != nil {
		return *p.PaidAt
	}
	if !p.UpdatedAt.IsZero() {
		return p.UpdatedAt
	}
	return p.CreatedAt
}
