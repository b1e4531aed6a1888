package models

import "time"

type PayoutStatus string

const (
	PayoutPending         PayoutStatus = "pending"
	PayoutProcessing      PayoutStatus = "processing"
	PayoutCompleted       PayoutStatus = "completed"
	PayoutFailed          PayoutStatus = "failed"
	PayoutProcessingError PayoutStatus = "processing_error"
)

// NonTerminal reports whether the payout still blocks a new payout for
// the same event. A processing_error batch may already hold moved
// money, so it blocks until reconciliation settles it.
func (s PayoutStatus) NonTerminal() bool {
	return s == PayoutPending || s == PayoutProcessing || s == PayoutProcessingError
}

// Payout is one settlement batch of an event's collected online funds
// to the organizer's sub-account. All amounts are minor units and
// NetAmount = TotalSales - ProviderFeeTotal - PlatformFeeTotal.
type Payout struct {
	ID                 string       `db:"id" json:"id"`
	EventID            string       `db:"event_id" json:"event_id"`
	OrganizerID        string       `db:"organizer_id" json:"organizer_id"`
	Status             PayoutStatus `db:"status" json:"status"`
	TotalSales         int64        `db:"total_sales" json:"total_sales"`
	ProviderFeeTotal   int64        `db:"provider_fee_total" json:"provider_fee_total"`
	PlatformFeeTotal   int64        `db:"platform_fee_total" json:"platform_fee_total"`
	NetAmount          int64        `db:"net_amount" json:"net_amount"`
	TransactionCount   int64        `db:"transaction_count" json:"transaction_count"`
	ProviderTransferID string       `db:"provider_transfer_id" json:"provider_transfer_id,omitempty"`
	LastError          string       `db:"last_error" json:"last_error,omitempty"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
}
