package models

import "time"

// AccountDBStatus is the authoritative 4-value classification derived
// from provider flags. It is only ever written by the classifier.
type AccountDBStatus string

const (
	AccountUnverified AccountDBStatus = "unverified"
	AccountOnboarding AccountDBStatus = "onboarding"
	AccountVerified   AccountDBStatus = "verified"
	AccountRestricted AccountDBStatus = "restricted"
)

// AccountUIStatus is presentation-only and always recomputed from the
// latest classification, never stored as ground truth.
type AccountUIStatus string

const (
	UINoAccount       AccountUIStatus = "no_account"
	UIUnverified      AccountUIStatus = "unverified"
	UIRequirementsDue AccountUIStatus = "requirements_due"
	UIPendingReview   AccountUIStatus = "pending_review"
	UIReady           AccountUIStatus = "ready"
	UIRestricted      AccountUIStatus = "restricted"
)

// ConnectAccount is one organizer's payout destination at the provider.
type ConnectAccount struct {
	ID                string          `db:"id" json:"id"`
	OrganizerID       string          `db:"organizer_id" json:"organizer_id"`
	ProviderAccountID string          `db:"provider_account_id" json:"provider_account_id"`
	DBStatus          AccountDBStatus `db:"db_status" json:"db_status"`
	ChargesEnabled    bool            `db:"charges_enabled" json:"charges_enabled"`
	PayoutsEnabled    bool            `db:"payouts_enabled" json:"payouts_enabled"`
	CardPayments      string          `db:"card_payments_capability" json:"card_payments_capability"`
	Transfers         string          `db:"transfers_capability" json:"transfers_capability"`
	Disabled          bool            `db:"disabled" json:"disabled"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}
