package webhook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"event-settlement/internal/payment"
	"event-settlement/internal/provider"
	"event-settlement/internal/status"
	"event-settlement/models"
	"event-settlement/monitoring"
)

type accountSink interface {
	HandleAccountUpdated(ctx context.Context, snap *provider.AccountSnapshot) error
}

type payoutSink interface {
	ConfirmTransfer(ctx context.Context, payoutID, transferID string) error
	ReverseTransfer(ctx context.Context, payoutID, transferID string) error
}

type notifier interface {
	PaymentStatusChanged(attendanceID, paymentID, newStatus string, version int64)
}

// Gate is the single entry point for provider deliveries. It verifies
// the signature, deduplicates, and applies the event's effect exactly
// once. Redelivery is the provider's normal behavior, not an error, so
// duplicates are acknowledged with success.
type Gate struct {
	secret   string
	redis    *redis.Client
	ledger   *Ledger
	payments *payment.Store
	machine  *payment.Machine
	accounts accountSink
	payouts  payoutSink
	notify   notifier

	dedupeTTL    time.Duration
	maxRetries   int
	notFoundWait time.Duration
}

type GateConfig struct {
	WebhookSecret string
	DedupeTTL     time.Duration
	MaxRetries    int
	NotFoundWait  time.Duration
}

func NewGate(redisClient *redis.Client, ledger *Ledger, payments *payment.Store, machine *payment.Machine, accounts accountSink, payouts payoutSink, n notifier, cfg GateConfig) *Gate {
	return &Gate{
		secret:       cfg.WebhookSecret,
		redis:        redisClient,
		ledger:       ledger,
		payments:     payments,
		machine:      machine,
		accounts:     accounts,
		payouts:      payouts,
		notify:       n,
		dedupeTTL:    cfg.DedupeTTL,
		maxRetries:   cfg.MaxRetries,
		notFoundWait: cfg.NotFoundWait,
	}
}

// Result tells the handler how to respond. Duplicate and Applied both
// acknowledge; the distinction only matters for metrics and logs.
type Result struct {
	Type      string
	Duplicate bool
	Applied   bool
}

// Process handles one raw delivery. Signature failures come back as
// UNAUTHORIZED so the handler answers 401 and the provider stops
// retrying; transient failures stay 5xx-mapped so it retries.
func (g *Gate) Process(ctx context.Context, payload []byte, signature string) (*Result, error) {
	raw, err := stripewebhook.ConstructEventWithOptions(payload, signature, g.secret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		monitoring.TrackWebhookEvent("unverified", "rejected")
		return nil, status.ErrUnauthenticated
	}

	ev, err := Decode(&raw)
	if err != nil {
		monitoring.TrackWebhookEvent(string(raw.Type), "malformed")
		return nil, err
	}
	if ev.Unknown {
		monitoring.TrackWebhookEvent(ev.Type, "ignored")
		return &Result{Type: ev.Type, Applied: false}, nil
	}

	if dup, err := g.alreadyProcessed(ctx, ev.ProviderEventID); err != nil {
		return nil, err
	} else if dup {
		monitoring.TrackWebhookEvent(ev.Type, "duplicate")
		return &Result{Type: ev.Type, Duplicate: true}, nil
	}

	paymentID, payoutID, applied, err := g.dispatch(ctx, ev)
	if err != nil {
		monitoring.TrackWebhookEvent(ev.Type, "failed")
		return nil, err
	}

	// Effect is committed; record it so redelivery becomes a no-op.
	// The ledger row is the durable truth, the redis key just spares
	// a query on the common fast redelivery.
	if err := g.ledger.Record(ctx, ev.ProviderEventID, ev.Type, paymentID, payoutID); err != nil {
		return nil, err
	}
	g.markProcessed(ctx, ev.ProviderEventID)

	monitoring.TrackWebhookEvent(ev.Type, "applied")
	slog.Info("webhook applied",
		"provider_event_id", ev.ProviderEventID,
		"event_type", ev.Type,
		"payment_id", paymentID,
		"payout_id", payoutID,
		"state_changed", applied,
	)
	return &Result{Type: ev.Type, Applied: applied}, nil
}

func (g *Gate) alreadyProcessed(ctx context.Context, providerEventID string) (bool, error) {
	if n, err := g.redis.Exists(ctx, dedupeKey(providerEventID)).Result(); err == nil && n > 0 {
		return true, nil
	}
	return g.ledger.Seen(ctx, providerEventID)
}

func (g *Gate) markProcessed(ctx context.Context, providerEventID string) {
	if err := g.redis.Set(ctx, dedupeKey(providerEventID), 1, g.dedupeTTL).Err(); err != nil {
		slog.Warn("webhook dedupe cache write failed", "provider_event_id", providerEventID, "error", err)
	}
}

func dedupeKey(providerEventID string) string {
	return "webhook:event:" + providerEventID
}

func (g *Gate) dispatch(ctx context.Context, ev *Event) (paymentID, payoutID string, applied bool, err error) {
	switch {
	case ev.PaymentSucceeded != nil:
		applied, err = g.applyPaymentSignal(ctx, ev.PaymentSucceeded, models.PaymentPaid)
		return ev.PaymentSucceeded.PaymentID, "", applied, err

	case ev.PaymentFailed != nil:
		applied, err = g.applyPaymentSignal(ctx, ev.PaymentFailed, models.PaymentFailed)
		return ev.PaymentFailed.PaymentID, "", applied, err

	case ev.PaymentRefunded != nil:
		var p *models.Payment
		p, err = g.resolvePayment(ctx, ev.PaymentRefunded)
		if err != nil {
			return "", "", false, err
		}
		applied, err = g.applyTransition(ctx, p.ID, models.PaymentRefunded, ev.PaymentRefunded.IntentID)
		return p.ID, "", applied, err

	case ev.AccountUpdated != nil:
		err = g.accounts.HandleAccountUpdated(ctx, ev.AccountUpdated)
		return "", "", err == nil, err

	case ev.TransferCreated != nil:
		err = g.payouts.ConfirmTransfer(ctx, ev.TransferCreated.PayoutID, ev.TransferCreated.TransferID)
		return "", ev.TransferCreated.PayoutID, err == nil, err

	case ev.TransferReversed != nil:
		err = g.payouts.ReverseTransfer(ctx, ev.TransferReversed.PayoutID, ev.TransferReversed.TransferID)
		return "", ev.TransferReversed.PayoutID, err == nil, err
	}
	return "", "", false, nil
}

func (g *Gate) applyPaymentSignal(ctx context.Context, signal *PaymentSignal, to models.PaymentStatus) (bool, error) {
	p, err := g.resolvePayment(ctx, signal)
	if err != nil {
		return false, err
	}
	return g.applyTransition(ctx, p.ID, to, signal.IntentID)
}

// resolvePayment finds the row the signal points at. A delivery can
// race the checkout commit by a moment, so a miss gets one short wait
// before being surfaced for the provider to redeliver.
func (g *Gate) resolvePayment(ctx context.Context, signal *PaymentSignal) (*models.Payment, error) {
	load := func() (*models.Payment, error) {
		if signal.PaymentID != "" {
			return g.payments.GetByID(ctx, signal.PaymentID)
		}
		return g.payments.GetByProviderIntent(ctx, signal.IntentID)
	}

	p, err := load()
	if errors.Is(err, status.ErrNotFound) && g.notFoundWait > 0 {
		select {
		case <-ctx.Done():
			return nil, status.Wrap(status.CodeProvider, "webhook processing canceled", ctx.Err())
		case <-time.After(g.notFoundWait):
		}
		p, err = load()
	}
	return p, err
}

// applyTransition runs the optimistic update with a bounded retry.
// Conflicts here mean another writer moved the row between our read
// and write; rereading picks up the new version and the state machine
// decides whether anything is left to do.
func (g *Gate) applyTransition(ctx context.Context, paymentID string, to models.PaymentStatus, intentID string) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		p, err := g.payments.GetByID(ctx, paymentID)
		if err != nil {
			return false, err
		}

		updated, changed, err := g.machine.Apply(ctx, payment.ApplyParams{
			PaymentID:        paymentID,
			To:               to,
			ExpectedVersion:  p.Version,
			ProviderIntentID: intentID,
			Reason:           "provider webhook",
		})
		if err == nil {
			if changed {
				g.notify.PaymentStatusChanged(updated.AttendanceID, updated.ID, string(updated.Status), updated.Version)
			}
			return changed, nil
		}
		if !errors.Is(err, status.ErrVersionConflict) {
			return false, err
		}
		lastErr = err
	}
	return false, lastErr
}
