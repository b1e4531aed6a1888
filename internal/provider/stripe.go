package provider

import (
	"context"
	"errors"

	"event-settlement/internal/status"
	"event-settlement/utils"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/transfer"
)

// StripeClient implements Client on the Stripe SDK. All calls run
// through a shared circuit breaker so a degraded provider fails fast
// instead of stacking up blocked requests.
type StripeClient struct {
	breaker *utils.CircuitBreaker
}

func NewStripeClient(secretKey string) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{
		breaker: utils.NewCircuitBreaker("stripe"),
	}
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(params.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			// payment_id is the business key every webhook resolves by.
			Metadata: map[string]string{"payment_id": params.PaymentID},
		},
		Metadata: map[string]string{"payment_id": params.PaymentID},
	}
	// Funds normally settle on the platform balance and move to the
	// sub-account in a later payout batch; a destination charge routes
	// them directly instead.
	if params.ConnectAccountID != "" {
		sessionParams.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(params.ApplicationFee)
		sessionParams.PaymentIntentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(params.ConnectAccountID),
		}
	}
	sessionParams.Params.Context = ctx

	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return session.New(sessionParams)
	})
	if err != nil {
		return nil, mapStripeErr("create checkout session", err)
	}

	s := result.(*stripe.CheckoutSession)
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (c *StripeClient) GetAccount(ctx context.Context, accountID string) (*AccountSnapshot, error) {
	accountParams := &stripe.AccountParams{}
	accountParams.Params.Context = ctx

	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return account.GetByID(accountID, accountParams)
	})
	if err != nil {
		return nil, mapStripeErr("get account", err)
	}

	return SnapshotFromAccount(result.(*stripe.Account)), nil
}

func (c *StripeClient) CreateTransfer(ctx context.Context, params TransferParams) (*Transfer, error) {
	transferParams := &stripe.TransferParams{
		Amount:      stripe.Int64(params.Amount),
		Currency:    stripe.String(params.Currency),
		Destination: stripe.String(params.Destination),
		Metadata:    map[string]string{"payout_id": params.PayoutID},
	}
	transferParams.Params.Context = ctx
	transferParams.SetIdempotencyKey(params.IdempotencyKey)

	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return transfer.New(transferParams)
	})
	if err != nil {
		return nil, mapStripeErr("create transfer", err)
	}

	return transferFromStripe(result.(*stripe.Transfer)), nil
}

func (c *StripeClient) GetTransfer(ctx context.Context, transferID string) (*Transfer, error) {
	transferParams := &stripe.TransferParams{}
	transferParams.Params.Context = ctx

	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return transfer.Get(transferID, transferParams)
	})
	if err != nil {
		return nil, mapStripeErr("get transfer", err)
	}

	return transferFromStripe(result.(*stripe.Transfer)), nil
}

func (c *StripeClient) FindTransferByPayout(ctx context.Context, destination, payoutID string) (*Transfer, error) {
	listParams := &stripe.TransferListParams{
		Destination: stripe.String(destination),
	}
	listParams.Limit = stripe.Int64(100)
	listParams.Context = ctx

	result, err := c.breaker.Execute(ctx, func() (any, error) {
		iter := transfer.List(listParams)
		for iter.Next() {
			t := iter.Transfer()
			if t.Metadata["payout_id"] == payoutID {
				return t, nil
			}
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return nil, status.ErrNotFound
	})
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return nil, status.ErrNotFound
		}
		return nil, mapStripeErr("find transfer", err)
	}
	return transferFromStripe(result.(*stripe.Transfer)), nil
}

// SnapshotFromAccount normalizes a raw account object into the shape
// the classifier reads. Webhook payloads and direct fetches both go
// through here so both sides see identical fields.
func SnapshotFromAccount(a *stripe.Account) *AccountSnapshot {
	snap := &AccountSnapshot{
		AccountID:        a.ID,
		DetailsSubmitted: a.DetailsSubmitted,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		CardPayments:     CapabilityInactive,
		Transfers:        CapabilityInactive,
	}
	if a.Capabilities != nil {
		if a.Capabilities.CardPayments != "" {
			snap.CardPayments = string(a.Capabilities.CardPayments)
		}
		if a.Capabilities.Transfers != "" {
			snap.Transfers = string(a.Capabilities.Transfers)
		}
	}
	if a.Requirements != nil {
		snap.DisabledReason = string(a.Requirements.DisabledReason)
		snap.CurrentlyDue = a.Requirements.CurrentlyDue
		snap.PastDue = a.Requirements.PastDue
		snap.EventuallyDue = a.Requirements.EventuallyDue
		snap.PendingVerification = a.Requirements.PendingVerification
	}
	return snap
}

func transferFromStripe(t *stripe.Transfer) *Transfer {
	dest := ""
	if t.Destination != nil {
		dest = t.Destination.ID
	}
	return &Transfer{
		ID:          t.ID,
		Amount:      t.Amount,
		Destination: dest,
		Reversed:    t.Reversed,
		Created:     t.Created,
	}
}

// mapStripeErr folds SDK failures into the engine taxonomy. A canceled
// or timed-out context is an unknown outcome: money may have moved, so
// the caller must reconcile rather than assume failure.
func mapStripeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return status.Wrap(status.CodeProvider, op+": outcome unknown, reconcile later", err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return status.Wrap(status.CodeNotFound, op+": provider has no such record", err)
		case stripeErr.HTTPStatusCode == 429:
			return status.Wrap(status.CodeRateLimited, op+": provider rate limit", err)
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return status.Wrap(status.CodeValidation, op+": "+stripeErr.Msg, err)
		}
	}
	return status.Wrap(status.CodeProvider, op+" failed", err)
}
