package payout

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

type Store struct {
	db dbx.Builder
}

func NewStore(db dbx.Builder) *Store {
	return &Store{db: db}
}

// Create inserts the batch in pending. At most one non-terminal payout
// may exist per event; this check gives the clean error, and the
// partial unique index on open payouts backstops it when two instances
// race past the read.
func (s *Store) Create(ctx context.Context, p *models.Payout) (*models.Payout, error) {
	open, err := s.GetOpenByEvent(ctx, p.EventID)
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		return nil, err
	}
	if open != nil {
		return nil, status.ErrPayoutInProgress
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.Status = models.PayoutPending
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = s.db.Insert("payouts", dbx.Params{
		"id":                   p.ID,
		"event_id":             p.EventID,
		"organizer_id":         p.OrganizerID,
		"status":               string(p.Status),
		"total_sales":          p.TotalSales,
		"provider_fee_total":   p.ProviderFeeTotal,
		"platform_fee_total":   p.PlatformFeeTotal,
		"net_amount":           p.NetAmount,
		"transaction_count":    p.TransactionCount,
		"provider_transfer_id": "",
		"last_error":           "",
		"created_at":           now,
		"updated_at":           now,
	}).WithContext(ctx).Execute()
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "create payout", err)
	}
	return p, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Payout, error) {
	var p models.Payout
	err := s.db.NewQuery(
		"SELECT * FROM payouts WHERE id = {:id}",
	).Bind(dbx.Params{"id": id}).WithContext(ctx).One(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "load payout", err)
	}
	return &p, nil
}

// GetOpenByEvent returns the event's non-terminal payout, if any.
func (s *Store) GetOpenByEvent(ctx context.Context, eventID string) (*models.Payout, error) {
	var p models.Payout
	err := s.db.NewQuery(
		"SELECT * FROM payouts WHERE event_id = {:eid} AND status IN ({:p}, {:pr}, {:pe})",
	).Bind(dbx.Params{
		"eid": eventID,
		"p":   string(models.PayoutPending),
		"pr":  string(models.PayoutProcessing),
		"pe":  string(models.PayoutProcessingError),
	}).WithContext(ctx).One(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "load open payout", err)
	}
	return &p, nil
}

// ListUnresolved returns every batch whose transfer outcome is still
// unknown: processing_error, plus processing batches holding a transfer
// id the confirmation webhook never closed out. The background
// reconciler sweeps these.
func (s *Store) ListUnresolved(ctx context.Context) ([]*models.Payout, error) {
	var rows []*models.Payout
	err := s.db.NewQuery(
		`SELECT * FROM payouts
		 WHERE status = {:pe} OR (status = {:pr} AND provider_transfer_id != '')
		 ORDER BY updated_at ASC`,
	).Bind(dbx.Params{
		"pe": string(models.PayoutProcessingError),
		"pr": string(models.PayoutProcessing),
	}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "list unresolved payouts", err)
	}
	return rows, nil
}

// SetStatus moves a payout between states, guarded on the state the
// caller read so two workers cannot both claim the same transition.
func (s *Store) SetStatus(ctx context.Context, id string, from, to models.PayoutStatus, transferID, lastError string) error {
	fields := dbx.Params{
		"status":     string(to),
		"last_error": lastError,
		"updated_at": time.Now().UTC(),
	}
	if transferID != "" {
		fields["provider_transfer_id"] = transferID
	}

	res, err := s.db.Update("payouts", fields, dbx.NewExp(
		"id = {:id} AND status = {:from}",
		dbx.Params{"id": id, "from": string(from)},
	)).WithContext(ctx).Execute()
	if err != nil {
		return status.Wrap(status.CodeDatabase, "update payout status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return status.Wrap(status.CodeDatabase, "update payout status", err)
	}
	if n == 0 {
		return status.Errorf(status.CodeConflict, "payout %s is no longer %s", id, from)
	}
	return nil
}
