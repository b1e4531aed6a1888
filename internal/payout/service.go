package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"event-settlement/internal/fees"
	"event-settlement/internal/payment"
	"event-settlement/internal/provider"
	"event-settlement/internal/status"
	"event-settlement/models"
	"event-settlement/monitoring"
	"event-settlement/utils"
)

type transferGate interface {
	GateForTransfer(ctx context.Context, organizerID string) (*models.ConnectAccount, error)
	GetByOrganizer(ctx context.Context, organizerID string) (*models.ConnectAccount, error)
}

type notifier interface {
	PayoutStatusChanged(organizerID, payoutID, newStatus string)
}

// batchStore is the slice of the payout store the service needs.
type batchStore interface {
	Create(ctx context.Context, p *models.Payout) (*models.Payout, error)
	GetByID(ctx context.Context, id string) (*models.Payout, error)
	ListUnresolved(ctx context.Context) ([]*models.Payout, error)
	SetStatus(ctx context.Context, id string, from, to models.PayoutStatus, transferID, lastError string) error
}

// paymentBook covers the payment-side bookkeeping of a batch.
type paymentBook interface {
	ListUnsettledPaid(ctx context.Context, eventID string) ([]*models.Payment, error)
	AttachToPayout(ctx context.Context, paymentIDs []string, payoutID string) error
	MarkSettled(ctx context.Context, payoutID string) (int64, error)
	ReopenSettled(ctx context.Context, payoutID string) (int64, error)
	DetachFromPayout(ctx context.Context, payoutID string) error
}

// Service batches an event's settled online payments into one transfer
// to the organizer's sub-account and tracks the transfer outcome.
type Service struct {
	store    batchStore
	payments paymentBook
	fees     *fees.Calculator
	provider provider.Client
	gate     transferGate
	notify   notifier

	currency        string
	transferTimeout time.Duration
}

type ServiceConfig struct {
	Currency        string
	TransferTimeout time.Duration
}

func NewService(store *Store, payments *payment.Store, calc *fees.Calculator, providerClient provider.Client, gate transferGate, n notifier, cfg ServiceConfig) *Service {
	return &Service{
		store:           store,
		payments:        payments,
		fees:            calc,
		provider:        providerClient,
		gate:            gate,
		notify:          n,
		currency:        cfg.Currency,
		transferTimeout: cfg.TransferTimeout,
	}
}

// batchTotals folds per-transaction provider fees and the aggregate
// platform fee into one payout. Totals are per transaction for the
// provider side because that is how the provider charges them; the
// platform fee is computed once on the aggregate.
func batchTotals(rows []*models.Payment, calc *fees.Calculator) (*models.Payout, error) {
	batch := &models.Payout{TransactionCount: int64(len(rows))}
	for _, p := range rows {
		fee, err := calc.ProviderFee(p.Amount)
		if err != nil {
			return nil, err
		}
		batch.TotalSales += p.Amount
		batch.ProviderFeeTotal += fee
	}
	platformFee, err := calc.PlatformFee(batch.TotalSales, batch.TransactionCount)
	if err != nil {
		return nil, err
	}
	batch.PlatformFeeTotal = platformFee
	batch.NetAmount = batch.TotalSales - batch.ProviderFeeTotal - batch.PlatformFeeTotal
	if batch.NetAmount < 0 {
		return nil, status.Errorf(status.CodeCalculation,
			"net amount %d is negative (sales %d, provider fees %d, platform fee %d)",
			batch.NetAmount, batch.TotalSales, batch.ProviderFeeTotal, batch.PlatformFeeTotal)
	}
	return batch, nil
}

// CreatePayout aggregates every unsettled paid online payment of the
// event into a new batch and attempts the transfer. Totals are fixed
// at creation; payments that land after the snapshot go into the next
// batch.
func (s *Service) CreatePayout(ctx context.Context, eventID, organizerID string) (*models.Payout, error) {
	// Early rejection before any aggregation work. executeTransfer runs
	// the gate again on a fresh snapshot immediately before moving money.
	if _, err := s.gate.GateForTransfer(ctx, organizerID); err != nil {
		monitoring.TrackPayoutOperation("create", "gate_rejected")
		return nil, err
	}

	rows, err := s.payments.ListUnsettledPaid(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, status.Errorf(status.CodeValidation, "event %s has no unsettled paid payments", eventID)
	}

	batch, err := batchTotals(rows, s.fees)
	if err != nil {
		if status.CodeOf(err) == status.CodeCalculation {
			monitoring.TrackPayoutOperation("create", "negative_net")
		}
		return nil, err
	}
	batch.EventID = eventID
	batch.OrganizerID = organizerID

	batch, err = s.store.Create(ctx, batch)
	if err != nil {
		if errors.Is(err, status.ErrPayoutInProgress) {
			monitoring.TrackPayoutOperation("create", "conflict")
		}
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, p := range rows {
		ids[i] = p.ID
	}
	if err := s.payments.AttachToPayout(ctx, ids, batch.ID); err != nil {
		// A racing batch claimed a row between snapshot and attach.
		// Fail this batch and release whatever it already stamped,
		// otherwise it would sit pending and block the event forever.
		if derr := s.payments.DetachFromPayout(ctx, batch.ID); derr != nil {
			slog.Error("release payments after failed attach", "payout_id", batch.ID, "error", derr)
		}
		if serr := s.store.SetStatus(ctx, batch.ID, models.PayoutPending, models.PayoutFailed, "", err.Error()); serr != nil {
			slog.Error("fail payout after failed attach", "payout_id", batch.ID, "error", serr)
		}
		monitoring.TrackPayoutOperation("create", "attach_conflict")
		return nil, err
	}

	slog.Info("payout created",
		"payout_id", batch.ID,
		"event_id", eventID,
		"transaction_count", batch.TransactionCount,
		"total_sales", batch.TotalSales,
		"net_amount", batch.NetAmount,
	)
	monitoring.TrackPayoutOperation("create", "ok")

	return s.executeTransfer(ctx, batch, models.PayoutPending)
}

// Retry re-attempts the transfer of a batch stuck in processing_error
// after reconciliation confirmed no money moved. A fresh idempotency
// key is required because the provider may have the old key pinned to
// the failed request.
func (s *Service) Retry(ctx context.Context, payoutID, callerID string) (*models.Payout, error) {
	batch, err := s.store.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if batch.OrganizerID != callerID {
		return nil, status.Errorf(status.CodeForbidden, "only the organizer may retry this payout")
	}
	if batch.Status != models.PayoutProcessingError {
		return nil, status.Errorf(status.CodeConflict, "payout %s is %s, only processing_error can be retried", payoutID, batch.Status)
	}

	// Reconcile first: if the original transfer actually went through,
	// retrying would pay the organizer twice.
	batch, err = s.Reconcile(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.PayoutProcessingError {
		monitoring.TrackPayoutOperation("retry", "already_resolved")
		return batch, nil
	}

	monitoring.TrackPayoutOperation("retry", "ok")
	return s.executeTransfer(ctx, batch, models.PayoutProcessingError)
}

// executeTransfer moves the batch into processing and calls the
// provider. Success keeps the batch in processing with the transfer id
// recorded; the transfer.created webhook or the reconciler promotes it
// to completed. A confirmed rejection fails the batch; an unknown
// outcome parks it in processing_error for the reconciler.
func (s *Service) executeTransfer(ctx context.Context, batch *models.Payout, from models.PayoutStatus) (*models.Payout, error) {
	// Account readiness can change between aggregation and transfer,
	// so the gate runs again here on a fresh snapshot.
	acct, err := s.gate.GateForTransfer(ctx, batch.OrganizerID)
	if err != nil {
		monitoring.TrackPayoutOperation("transfer", "gate_rejected")
		if serr := s.store.SetStatus(ctx, batch.ID, from, models.PayoutFailed, "", err.Error()); serr != nil {
			return nil, serr
		}
		if derr := s.payments.DetachFromPayout(ctx, batch.ID); derr != nil {
			return nil, derr
		}
		s.notify.PayoutStatusChanged(batch.OrganizerID, batch.ID, string(models.PayoutFailed))
		return nil, err
	}

	if err := s.store.SetStatus(ctx, batch.ID, from, models.PayoutProcessing, "", ""); err != nil {
		return nil, err
	}

	nonce, err := utils.GenerateCode(8)
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "generate idempotency nonce", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.transferTimeout)
	defer cancel()

	started := time.Now()
	tr, err := s.provider.CreateTransfer(callCtx, provider.TransferParams{
		PayoutID:       batch.ID,
		Amount:         batch.NetAmount,
		Currency:       s.currency,
		Destination:    acct.ProviderAccountID,
		IdempotencyKey: fmt.Sprintf("%s-%s", batch.ID, nonce),
	})
	monitoring.TrackProviderCall("create_transfer", time.Since(started))

	if err != nil {
		return s.recordTransferFailure(ctx, batch, err)
	}

	// The provider accepted the call, but completed is reserved for the
	// confirmed transfer. The batch stays processing with the transfer
	// id until transfer.created or the reconciler settles it.
	if err := s.store.SetStatus(ctx, batch.ID, models.PayoutProcessing, models.PayoutProcessing, tr.ID, ""); err != nil {
		// transfer.created can land before this write; a lost claim
		// here means confirmation already promoted the batch.
		if status.CodeOf(err) == status.CodeConflict {
			return s.store.GetByID(ctx, batch.ID)
		}
		return nil, err
	}

	slog.Info("payout transfer submitted", "payout_id", batch.ID, "transfer_id", tr.ID, "net_amount", batch.NetAmount)
	monitoring.TrackPayoutOperation("transfer", "submitted")
	s.notify.PayoutStatusChanged(batch.OrganizerID, batch.ID, string(models.PayoutProcessing))

	return s.store.GetByID(ctx, batch.ID)
}

func (s *Service) recordTransferFailure(ctx context.Context, batch *models.Payout, transferErr error) (*models.Payout, error) {
	to := models.PayoutFailed
	outcome := "failed"
	if status.Retryable(transferErr) {
		// Timeout or 5xx: the transfer may exist on the provider side.
		// Never mark failed here, the reconciler decides.
		to = models.PayoutProcessingError
		outcome = "unknown_outcome"
	}

	if err := s.store.SetStatus(ctx, batch.ID, models.PayoutProcessing, to, "", transferErr.Error()); err != nil {
		return nil, err
	}
	if to == models.PayoutFailed {
		if err := s.payments.DetachFromPayout(ctx, batch.ID); err != nil {
			return nil, err
		}
	}
	slog.Warn("payout transfer did not complete",
		"payout_id", batch.ID,
		"status", to,
		"error", transferErr,
	)
	monitoring.TrackPayoutOperation("transfer", outcome)
	s.notify.PayoutStatusChanged(batch.OrganizerID, batch.ID, string(to))

	return nil, transferErr
}

// ConfirmTransfer is the webhook path for transfer.created. It promotes
// a batch the synchronous call lost track of.
func (s *Service) ConfirmTransfer(ctx context.Context, payoutID, transferID string) error {
	batch, err := s.store.GetByID(ctx, payoutID)
	if err != nil {
		return err
	}
	switch batch.Status {
	case models.PayoutCompleted:
		return nil
	case models.PayoutProcessing, models.PayoutProcessingError:
		if err := s.store.SetStatus(ctx, payoutID, batch.Status, models.PayoutCompleted, transferID, ""); err != nil {
			return err
		}
		if _, err := s.payments.MarkSettled(ctx, payoutID); err != nil {
			return err
		}
		monitoring.TrackPayoutOperation("confirm", "ok")
		s.notify.PayoutStatusChanged(batch.OrganizerID, batch.ID, string(models.PayoutCompleted))
		return nil
	default:
		return status.Errorf(status.CodeConflict, "transfer %s confirmed for payout %s in state %s", transferID, payoutID, batch.Status)
	}
}

// ReverseTransfer handles transfer.reversed. The funds went back to
// the platform, so the batch fails and its payments become payable
// again in a future batch.
func (s *Service) ReverseTransfer(ctx context.Context, payoutID, transferID string) error {
	batch, err := s.store.GetByID(ctx, payoutID)
	if err != nil {
		return err
	}
	if batch.Status == models.PayoutFailed {
		return nil
	}
	if err := s.store.SetStatus(ctx, payoutID, batch.Status, models.PayoutFailed, transferID, "transfer reversed by provider"); err != nil {
		return err
	}
	if _, err := s.payments.ReopenSettled(ctx, payoutID); err != nil {
		return err
	}
	if err := s.payments.DetachFromPayout(ctx, payoutID); err != nil {
		return err
	}
	monitoring.TrackPayoutOperation("reverse", "ok")
	s.notify.PayoutStatusChanged(batch.OrganizerID, batch.ID, string(models.PayoutFailed))
	return nil
}

// GetPayout enforces organizer visibility.
func (s *Service) GetPayout(ctx context.Context, payoutID, callerID string) (*models.Payout, error) {
	batch, err := s.store.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if batch.OrganizerID != callerID {
		return nil, status.Errorf(status.CodeForbidden, "not allowed to view this payout")
	}
	return batch, nil
}
