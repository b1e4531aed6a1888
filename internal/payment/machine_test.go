package payment

import (
	"context"
	"testing"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-settlement/internal/status"
	"event-settlement/models"
)

func TestCanTransition_OnlineLifecycle(t *testing.T) {
	tests := []struct {
		name string
		from models.PaymentStatus
		to   models.PaymentStatus
		want bool
	}{
		{"pending to paid", models.PaymentPending, models.PaymentPaid, true},
		{"pending to failed", models.PaymentPending, models.PaymentFailed, true},
		{"paid to refunded", models.PaymentPaid, models.PaymentRefunded, true},
		{"paid to completed", models.PaymentPaid, models.PaymentCompleted, true},
		{"completed to refunded", models.PaymentCompleted, models.PaymentRefunded, true},
		{"paid to pending", models.PaymentPaid, models.PaymentPending, false},
		{"failed is terminal", models.PaymentFailed, models.PaymentPending, false},
		{"failed cannot be paid", models.PaymentFailed, models.PaymentPaid, false},
		{"refunded is terminal", models.PaymentRefunded, models.PaymentPaid, false},
		{"pending cannot skip to completed", models.PaymentPending, models.PaymentCompleted, false},
		{"online cannot be received", models.PaymentPending, models.PaymentReceived, false},
		{"online cannot be waived", models.PaymentPending, models.PaymentWaived, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to, models.MethodOnline))
		})
	}
}

func TestCanTransition_CashLifecycle(t *testing.T) {
	assert.True(t, CanTransition(models.PaymentPending, models.PaymentReceived, models.MethodCash))
	assert.True(t, CanTransition(models.PaymentPending, models.PaymentWaived, models.MethodCash))

	// Cash rows never enter the online settlement states.
	assert.False(t, CanTransition(models.PaymentPending, models.PaymentPaid, models.MethodCash))
	assert.False(t, CanTransition(models.PaymentPending, models.PaymentRefunded, models.MethodCash))
	assert.False(t, CanTransition(models.PaymentReceived, models.PaymentWaived, models.MethodCash))
	assert.False(t, CanTransition(models.PaymentWaived, models.PaymentReceived, models.MethodCash))
}

func TestResolveAuthoritative_PrefersMostRecentEffectiveTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := &models.Payment{
		ID:        "p1",
		Status:    models.PaymentPending,
		CreatedAt: base,
		UpdatedAt: base,
	}
	newer := &models.Payment{
		ID:        "p2",
		Status:    models.PaymentPending,
		CreatedAt: base.Add(time.Hour),
		UpdatedAt: base.Add(2 * time.Hour),
	}

	got := ResolveAuthoritative([]*models.Payment{older, newer})
	require.NotNil(t, got)
	assert.Equal(t, "p2", got.ID)
}

func TestResolveAuthoritative_SkipsCompletedRows(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	paidAt := base.Add(3 * time.Hour)
	settled := &models.Payment{
		ID:        "settled",
		Status:    models.PaymentPaid,
		PaidAt:    &paidAt,
		CreatedAt: base,
		UpdatedAt: base,
	}
	open := &models.Payment{
		ID:        "open",
		Status:    models.PaymentPending,
		CreatedAt: base,
		UpdatedAt: base,
	}

	got := ResolveAuthoritative([]*models.Payment{settled, open})
	require.NotNil(t, got)
	assert.Equal(t, "open", got.ID)
}

func TestResolveAuthoritative_AllCompleted(t *testing.T) {
	assert.Nil(t, ResolveAuthoritative([]*models.Payment{
		{ID: "a", Status: models.PaymentPaid},
		{ID: "b", Status: models.PaymentRefunded},
	}))
}

// fakeMachineStore keeps one row in memory and counts CAS writes.
type fakeMachineStore struct {
	row      *models.Payment
	casCalls int
}

func (f *fakeMachineStore) GetByID(_ context.Context, id string) (*models.Payment, error) {
	if f.row == nil || f.row.ID != id {
		return nil, status.ErrNotFound
	}
	cp := *f.row
	return &cp, nil
}

func (f *fakeMachineStore) casUpdate(_ context.Context, id string, expectedVersion int64, fields dbx.Params) error {
	f.casCalls++
	if f.row.ID != id || f.row.Version != expectedVersion {
		return status.ErrVersionConflict
	}
	f.row.Status = models.PaymentStatus(fields["status"].(string))
	f.row.Version = expectedVersion + 1
	if v, ok := fields["paid_at"]; ok {
		tm := v.(time.Time)
		f.row.PaidAt = &tm
	}
	if v, ok := fields["provider_intent_id"]; ok {
		f.row.ProviderIntentID = v.(string)
	}
	return nil
}

func TestApply_CashRetryWithStaleVersionConflicts(t *testing.T) {
	// Organizer A already moved the row to received, bumping it to
	// version 2. Organizer B retrying the same update with the version
	// it read before must get a conflict, not a silent success.
	store := &fakeMachineStore{row: &models.Payment{
		ID:      "pay_cash",
		Method:  models.MethodCash,
		Status:  models.PaymentReceived,
		Version: 2,
	}}
	m := &Machine{store: store}

	_, applied, err := m.Apply(context.Background(), ApplyParams{
		PaymentID:       "pay_cash",
		To:              models.PaymentReceived,
		ExpectedVersion: 1,
	})
	require.ErrorIs(t, err, status.ErrVersionConflict)
	assert.False(t, applied)
	assert.Zero(t, store.casCalls)
	assert.Equal(t, int64(2), store.row.Version)
}

func TestApply_PaidSetsPaidAtAndBumpsVersionOnce(t *testing.T) {
	store := &fakeMachineStore{row: &models.Payment{
		ID:      "pay_online",
		Method:  models.MethodOnline,
		Status:  models.PaymentPending,
		Version: 1,
	}}
	m := &Machine{store: store}

	updated, applied, err := m.Apply(context.Background(), ApplyParams{
		PaymentID:        "pay_online",
		To:               models.PaymentPaid,
		ExpectedVersion:  1,
		ProviderIntentID: "pi_123",
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.PaymentPaid, updated.Status)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "pi_123", updated.ProviderIntentID)
	require.NotNil(t, updated.PaidAt)

	// Redelivered webhook: same intent, stale version. Recognized as
	// already applied, nothing written, version untouched.
	again, applied, err := m.Apply(context.Background(), ApplyParams{
		PaymentID:        "pay_online",
		To:               models.PaymentPaid,
		ExpectedVersion:  1,
		ProviderIntentID: "pi_123",
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(2), again.Version)
	assert.Equal(t, 1, store.casCalls)
	assert.Equal(t, *updated.PaidAt, *again.PaidAt)
}

func TestApply_PaidThroughDifferentIntentConflicts(t *testing.T) {
	store := &fakeMachineStore{row: &models.Payment{
		ID:               "pay_online",
		Method:           models.MethodOnline,
		Status:           models.PaymentPaid,
		Version:          2,
		ProviderIntentID: "pi_first",
	}}
	m := &Machine{store: store}

	_, _, err := m.Apply(context.Background(), ApplyParams{
		PaymentID:        "pay_online",
		To:               models.PaymentPaid,
		ExpectedVersion:  2,
		ProviderIntentID: "pi_other",
	})
	require.Error(t, err)
	assert.Equal(t, status.CodeConflict, status.CodeOf(err))
	assert.Zero(t, store.casCalls)
}

func TestApply_StaleVersionConflicts(t *testing.T) {
	store := &fakeMachineStore{row: &models.Payment{
		ID:      "pay_online",
		Method:  models.MethodOnline,
		Status:  models.PaymentPending,
		Version: 3,
	}}
	m := &Machine{store: store}

	_, _, err := m.Apply(context.Background(), ApplyParams{
		PaymentID:       "pay_online",
		To:              models.PaymentPaid,
		ExpectedVersion: 1,
	})
	require.ErrorIs(t, err, status.ErrVersionConflict)
	assert.Zero(t, store.casCalls)
}

func TestApply_IllegalTransitionRejected(t *testing.T) {
	store := &fakeMachineStore{row: &models.Payment{
		ID:      "pay_cash",
		Method:  models.MethodCash,
		Status:  models.PaymentPending,
		Version: 1,
	}}
	m := &Machine{store: store}

	_, _, err := m.Apply(context.Background(), ApplyParams{
		PaymentID:       "pay_cash",
		To:              models.PaymentPaid,
		ExpectedVersion: 1,
	})
	require.Error(t, err)
	assert.Equal(t, status.CodeValidation, status.CodeOf(err))
	assert.Zero(t, store.casCalls)
}

func TestEffectiveTime_Precedence(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	paid := created.Add(2 * time.Hour)

	p := &models.Payment{CreatedAt: created}
	assert.Equal(t, created, p.EffectiveTime())

	p.UpdatedAt = updated
	assert.Equal(t, updated, p.EffectiveTime())

	p.PaidAt = &paid
	assert.Equal(t, paid, p.EffectiveTime())
}
