// Package provider defines the narrow contract the settlement engine
// has with the payment provider. Services and tests depend on this
// interface, never on the SDK directly.
package provider

import (
	"context"
)

// CheckoutParams describes one hosted checkout session. PaymentID is
// the stable business key: it rides in the payment-intent metadata so
// webhooks can address the local row without caring about the
// provider's own session/intent ids.
type CheckoutParams struct {
	PaymentID        string
	Amount           int64
	Currency         string
	Description      string
	SuccessURL       string
	CancelURL        string
	ConnectAccountID string
	ApplicationFee   int64
}

type CheckoutSession struct {
	ID  string
	URL string
}

// TransferParams moves collected funds to an organizer sub-account.
// IdempotencyKey must be stable per attempt so a retried call cannot
// double-pay.
type TransferParams struct {
	PayoutID       string
	Amount         int64
	Currency       string
	Destination    string
	IdempotencyKey string
}

type Transfer struct {
	ID          string
	Amount      int64
	Destination string
	Reversed    bool
	Created     int64
}

// AccountSnapshot is the provider's raw view of a sub-account at one
// point in time. The connect classifier derives all statuses from it.
type AccountSnapshot struct {
	AccountID           string
	DetailsSubmitted    bool
	ChargesEnabled      bool
	PayoutsEnabled      bool
	DisabledReason      string
	CardPayments        string // active | inactive | pending
	Transfers           string // active | inactive | pending
	CurrentlyDue        []string
	PastDue             []string
	EventuallyDue       []string
	PendingVerification []string
}

const (
	CapabilityActive   = "active"
	CapabilityInactive = "inactive"
	CapabilityPending  = "pending"
)

// Client is the complete provider surface the engine consumes.
type Client interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetAccount(ctx context.Context, accountID string) (*AccountSnapshot, error)
	CreateTransfer(ctx context.Context, params TransferParams) (*Transfer, error)
	GetTransfer(ctx context.Context, transferID string) (*Transfer, error)
	// FindTransferByPayout scans the destination's recent transfers for
	// one tagged with the payout id. Reconciliation uses it when a
	// timed-out create never returned a transfer id.
	FindTransferByPayout(ctx context.Context, destination, payoutID string) (*Transfer, error)
}
