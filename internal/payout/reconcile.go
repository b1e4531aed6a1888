package payout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"event-settlement/internal/provider"
	"event-settlement/internal/status"
	"event-settlement/models"
	"event-settlement/monitoring"
)

// Reconcile settles one unresolved batch against provider truth.
// Eligible are processing_error batches and processing batches holding
// a transfer id whose transfer.created webhook never arrived. Completed,
// failed and pending batches have a known outcome already and come back
// unchanged.
func (s *Service) Reconcile(ctx context.Context, payoutID string) (*models.Payout, error) {
	batch, err := s.store.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !reconcilable(batch) {
		return batch, nil
	}

	tr, err := s.lookupTransfer(ctx, batch)
	switch {
	case errors.Is(err, status.ErrNotFound) && batch.ProviderTransferID != "":
		// We recorded a transfer id the provider no longer knows.
		// Books cannot be trusted, a human has to look.
		slog.Error("payout integrity violation, recorded transfer missing at provider",
			"payout_id", batch.ID,
			"transfer_id", batch.ProviderTransferID,
		)
		monitoring.TrackPayoutOperation("reconcile", "integrity_violation")
		return nil, status.Errorf(status.CodeProvider,
			"payout %s references transfer %s the provider does not know", batch.ID, batch.ProviderTransferID)

	case errors.Is(err, status.ErrNotFound):
		// No transfer exists, the timed-out call never went through.
		if err := s.store.SetStatus(ctx, batch.ID, batch.Status, models.PayoutProcessingError,
			"", "no transfer at provider, safe to retry"); err != nil {
			return nil, err
		}
		monitoring.TrackPayoutOperation("reconcile", "retryable")
		return s.store.GetByID(ctx, batch.ID)

	case err != nil:
		return nil, err
	}

	if tr.Amount != batch.NetAmount {
		slog.Error("payout integrity violation, transfer amount mismatch",
			"payout_id", batch.ID,
			"transfer_id", tr.ID,
			"expected", batch.NetAmount,
			"actual", tr.Amount,
		)
		monitoring.TrackPayoutOperation("reconcile", "integrity_violation")
		return nil, status.Errorf(status.CodeProvider,
			"transfer %s amount %d does not match payout %s net %d", tr.ID, tr.Amount, batch.ID, batch.NetAmount)
	}

	if tr.Reversed {
		if err := s.store.SetStatus(ctx, batch.ID, batch.Status, models.PayoutFailed, tr.ID, "transfer reversed by provider"); err != nil {
			return nil, err
		}
		if err := s.payments.DetachFromPayout(ctx, batch.ID); err != nil {
			return nil, err
		}
		monitoring.TrackPayoutOperation("reconcile", "reversed")
		s.notify.PayoutStatusChanged(batch.OrganizerID, batch.ID, string(models.PayoutFailed))
		return s.store.GetByID(ctx, batch.ID)
	}

	// The money moved after all.
	if err := s.store.SetStatus(ctx, batch.ID, batch.Status, models.PayoutCompleted, tr.ID, ""); err != nil {
		return nil, err
	}
	if _, err := s.payments.MarkSettled(ctx, batch.ID); err != nil {
		return nil, err
	}
	slog.Info("payout reconciled as completed", "payout_id", batch.ID, "transfer_id", tr.ID)
	monitoring.TrackPayoutOperation("reconcile", "completed")
	s.notify.PayoutStatusChanged(batch.OrganizerID, batch.ID, string(models.PayoutCompleted))
	return s.store.GetByID(ctx, batch.ID)
}

// reconcilable reports whether the batch's transfer outcome is still
// unknown and worth checking against the provider.
func reconcilable(batch *models.Payout) bool {
	if batch.Status == models.PayoutProcessingError {
		return true
	}
	return batch.Status == models.PayoutProcessing && batch.ProviderTransferID != ""
}

func (s *Service) lookupTransfer(ctx context.Context, batch *models.Payout) (*provider.Transfer, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.transferTimeout)
	defer cancel()

	started := time.Now()
	defer func() { monitoring.TrackProviderCall("lookup_transfer", time.Since(started)) }()

	if batch.ProviderTransferID != "" {
		return s.provider.GetTransfer(callCtx, batch.ProviderTransferID)
	}

	// Reconciliation reads history, so the account lookup skips the
	// readiness gate. A restricted account must still settle its books.
	acct, err := s.gate.GetByOrganizer(ctx, batch.OrganizerID)
	if err != nil {
		return nil, err
	}
	return s.provider.FindTransferByPayout(callCtx, acct.ProviderAccountID, batch.ID)
}

// RunReconciler sweeps unresolved batches on a fixed interval until the
// context ends. Per-batch failures are logged and skipped so one stuck
// payout cannot starve the rest.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("payout reconciler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("payout reconciler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	rows, err := s.store.ListUnresolved(ctx)
	if err != nil {
		slog.Error("reconciler sweep failed", "error", err)
		return
	}
	for _, batch := range rows {
		if _, err := s.Reconcile(ctx, batch.ID); err != nil {
			slog.Warn("reconcile attempt failed", "payout_id", batch.ID, "error", err)
		}
	}
}
