package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"event-settlement/internal/status"
	"event-settlement/models"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
)

func nowUTC() time.Time { return time.Now().UTC() }

// Store persists payment rows. Status never changes here directly:
// every status write goes through the state machine's CAS entry point
// so the version counter stays the single concurrency guard.
type Store struct {
	db dbx.Builder
}

func NewStore(db dbx.Builder) *Store {
	return &Store{db: db}
}

type CreateParams struct {
	AttendanceID   string
	EventID        string
	OrganizerID    string
	Method         models.PaymentMethod
	Amount         int64
	GuestTokenHash string
}

// Create inserts a fresh pending payment after enforcing the
// at-most-one-active rule: any completed row for the attendance blocks
// a new payment outright (refunded included, money moved there once),
// and so does a still-open pending row. Only failed history rows leave
// room for a new attempt. The partial unique index on non-failed rows
// backstops this check when two instances race past the read.
func (s *Store) Create(ctx context.Context, params CreateParams) (*models.Payment, error) {
	if params.Amount < 0 {
		return nil, status.Errorf(status.CodeValidation, "amount must not be negative")
	}
	if params.Method != models.MethodOnline && params.Method != models.MethodCash {
		return nil, status.Errorf(status.CodeValidation, "unknown payment method %q", params.Method)
	}

	existing, err := s.GetByAttendance(ctx, params.AttendanceID)
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		return nil, err
	}
	for _, row := range existing {
		// A completed payment wins regardless of timestamps.
		if row.Status.Completed() {
			return nil, status.ErrDuplicatePayment
		}
	}
	if open := ResolveAuthoritative(existing); open != nil && open.Status == models.PaymentPending {
		return nil, status.ErrDuplicatePayment
	}

	now := time.Now().UTC()
	p := &models.Payment{
		ID:             uuid.NewString(),
		AttendanceID:   params.AttendanceID,
		EventID:        params.EventID,
		OrganizerID:    params.OrganizerID,
		Method:         params.Method,
		Amount:         params.Amount,
		Status:         models.PaymentPending,
		Version:        1,
		GuestTokenHash: params.GuestTokenHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = s.db.Insert("payments", dbx.Params{
		"id":                  p.ID,
		"attendance_id":       p.AttendanceID,
		"event_id":            p.EventID,
		"organizer_id":        p.OrganizerID,
		"method":              string(p.Method),
		"amount":              p.Amount,
		"status":              string(p.Status),
		"version":             p.Version,
		"provider_intent_id":  "",
		"provider_session_id": "",
		"payout_id":           "",
		"guest_token_hash":    p.GuestTokenHash,
		"paid_at":             nil,
		"created_at":          p.CreatedAt,
		"updated_at":          p.UpdatedAt,
	}).WithContext(ctx).Execute()
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "insert payment", err)
	}
	return p, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.NewQuery(
		"SELECT * FROM payments WHERE id = {:id}",
	).Bind(dbx.Params{"id": id}).WithContext(ctx).One(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "load payment", err)
	}
	return &p, nil
}

// GetByProviderIntent resolves a payment from the provider intent id.
// Refund events sometimes arrive without our metadata and this is the
// only key they carry.
func (s *Store) GetByProviderIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.NewQuery(
		"SELECT * FROM payments WHERE provider_intent_id = {:iid}",
	).Bind(dbx.Params{"iid": intentID}).WithContext(ctx).One(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "load payment by intent", err)
	}
	return &p, nil
}

// GetByAttendance returns every payment row ever created for the
// attendance, newest first. Rows are never deleted; failed and
// refunded attempts remain as audit history.
func (s *Store) GetByAttendance(ctx context.Context, attendanceID string) ([]*models.Payment, error) {
	var rows []*models.Payment
	err := s.db.NewQuery(
		"SELECT * FROM payments WHERE attendance_id = {:aid} ORDER BY created_at DESC",
	).Bind(dbx.Params{"aid": attendanceID}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "load payments by attendance", err)
	}
	if len(rows) == 0 {
		return nil, status.ErrNotFound
	}
	return rows, nil
}

// ResolveAuthoritative picks the authoritative row among non-completed
// candidates: the most recent by paid_at, else updated_at, else
// created_at. Completed rows are excluded; callers treat their
// presence as a hard stop before calling this.
func ResolveAuthoritative(rows []*models.Payment) *models.Payment {
	var best *models.Payment
	for _, row := range rows {
		if row.Status.Completed() {
			continue
		}
		if best == nil || row.EffectiveTime().After(best.EffectiveTime()) {
			best = row
		}
	}
	return best
}

// AttachProviderSession records the checkout-session id. Not a status
// mutation, so the version counter is untouched.
func (s *Store) AttachProviderSession(ctx context.Context, paymentID, sessionID string) error {
	_, err := s.db.Update("payments", dbx.Params{
		"provider_session_id": sessionID,
		"updated_at":          time.Now().UTC(),
	}, dbx.HashExp{"id": paymentID}).WithContext(ctx).Execute()
	if err != nil {
		return status.Wrap(status.CodeDatabase, "attach provider session", err)
	}
	return nil
}

// casUpdate is the single sanctioned status write: a compare-and-swap
// on the version column. Zero affected rows means a concurrent writer
// won and the caller must reload and retry, never overwrite.
func (s *Store) casUpdate(ctx context.Context, id string, expectedVersion int64, fields dbx.Params) error {
	fields["version"] = expectedVersion + 1
	fields["updated_at"] = time.Now().UTC()

	res, err := s.db.Update("payments", fields, dbx.NewExp(
		"id = {:id} AND version = {:version}",
		dbx.Params{"id": id, "version": expectedVersion},
	)).WithContext(ctx).Execute()
	if err != nil {
		return status.Wrap(status.CodeDatabase, "update payment", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return status.Wrap(status.CodeDatabase, "update payment", err)
	}
	if affected == 0 {
		return status.ErrVersionConflict
	}
	return nil
}

// ListUnsettledPaid returns paid online payments for the event that
// are not yet attached to any payout.
func (s *Store) ListUnsettledPaid(ctx context.Context, eventID string) ([]*models.Payment, error) {
	var rows []*models.Payment
	err := s.db.NewQuery(
		`SELECT * FROM payments
		 WHERE event_id = {:eid} AND method = {:method} AND status = {:status} AND payout_id = ''
		 ORDER BY created_at ASC`,
	).Bind(dbx.Params{
		"eid":    eventID,
		"method": string(models.MethodOnline),
		"status": string(models.PaymentPaid),
	}).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "list unsettled payments", err)
	}
	return rows, nil
}

// AttachToPayout stamps the payout id on rows entering a settlement
// batch. Guarded on payout_id = '' so a racing batch cannot claim the
// same row twice.
func (s *Store) AttachToPayout(ctx context.Context, paymentIDs []string, payoutID string) error {
	for _, id := range paymentIDs {
		res, err := s.db.Update("payments", dbx.Params{
			"payout_id":  payoutID,
			"updated_at": time.Now().UTC(),
		}, dbx.NewExp(
			"id = {:id} AND payout_id = ''",
			dbx.Params{"id": id},
		)).WithContext(ctx).Execute()
		if err != nil {
			return status.Wrap(status.CodeDatabase, "attach payment to payout", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return status.Errorf(status.CodeConflict, "payment %s already attached to a payout", id)
		}
	}
	return nil
}

// MarkSettled moves the paid rows of a confirmed payout to completed.
// The version bump happens in SQL per row, keeping the +1 invariant.
func (s *Store) MarkSettled(ctx context.Context, payoutID string) (int64, error) {
	res, err := s.db.NewQuery(
		`UPDATE payments
		 SET status = {:completed}, version = version + 1, updated_at = {:now}
		 WHERE payout_id = {:pid} AND status = {:paid}`,
	).Bind(dbx.Params{
		"completed": string(models.PaymentCompleted),
		"paid":      string(models.PaymentPaid),
		"pid":       payoutID,
		"now":       time.Now().UTC(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return 0, status.Wrap(status.CodeDatabase, "mark payments settled", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// ReopenSettled is the inverse of MarkSettled, run when a transfer is
// reversed. The rows go back to paid and detach so the next batch can
// pick them up.
func (s *Store) ReopenSettled(ctx context.Context, payoutID string) (int64, error) {
	res, err := s.db.NewQuery(
		`UPDATE payments
		 SET status = {:paid}, payout_id = '', version = version + 1, updated_at = {:now}
		 WHERE payout_id = {:pid} AND status = {:completed}`,
	).Bind(dbx.Params{
		"completed": string(models.PaymentCompleted),
		"paid":      string(models.PaymentPaid),
		"pid":       payoutID,
		"now":       time.Now().UTC(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return 0, status.Wrap(status.CodeDatabase, "reopen settled payments", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// DetachFromPayout releases still-paid rows from a batch whose
// transfer was confirmed rejected. No status or version change, the
// money never moved.
func (s *Store) DetachFromPayout(ctx context.Context, payoutID string) error {
	_, err := s.db.Update("payments", dbx.Params{
		"payout_id":  "",
		"updated_at": time.Now().UTC(),
	}, dbx.NewExp(
		"payout_id = {:pid} AND status = {:paid}",
		dbx.Params{"pid": payoutID, "paid": string(models.PaymentPaid)},
	)).WithContext(ctx).Execute()
	if err != nil {
		return status.Wrap(status.CodeDatabase, "detach payments from payout", err)
	}
	return nil
}
