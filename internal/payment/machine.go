package payment

import (
	"context"
	"log/slog"

	"event-settlement/internal/status"
	"event-settlement/models"
	"event-settlement/monitoring"

	"github.com/pocketbase/dbx"
)

// machineStore is the slice of Store the machine needs.
type machineStore interface {
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	casUpdate(ctx context.Context, id string, expectedVersion int64, fields dbx.Params) error
}

// Machine is the single authority for payment status transitions.
// Every apply is a compare-and-swap against the caller's expected
// version; a stale version is a concurrency conflict, never a merge.
type Machine struct {
	store machineStore
}

func NewMachine(store *Store) *Machine {
	return &Machine{store: store}
}

// legal maps each status to the transitions out of it. The cash path
// (received/waived) is organizer-driven, everything else is
// webhook- or settlement-driven. failed has no outgoing edge: a new
// attempt is a new row, the failed row is immutable history.
var legal = map[models.PaymentStatus]map[models.PaymentStatus]bool{
	models.PaymentPending: {
		models.PaymentPaid:     true,
		models.PaymentFailed:   true,
		models.PaymentReceived: true,
		models.PaymentWaived:   true,
	},
	models.PaymentPaid: {
		models.PaymentRefunded:  true,
		models.PaymentCompleted: true,
	},
	models.PaymentCompleted: {
		models.PaymentRefunded: true,
	},
}

// cashOnly marks the organizer-driven target states.
var cashOnly = map[models.PaymentStatus]bool{
	models.PaymentReceived: true,
	models.PaymentWaived:   true,
}

// CanTransition reports whether from -> to is a legal edge for the
// given method.
func CanTransition(from, to models.PaymentStatus, method models.PaymentMethod) bool {
	if !legal[from][to] {
		return false
	}
	if cashOnly[to] {
		return method == models.MethodCash
	}
	// Online settlement states never apply to cash rows.
	return method == models.MethodOnline
}

type ApplyParams struct {
	PaymentID       string
	To              models.PaymentStatus
	ExpectedVersion int64
	// ProviderIntentID is set exactly once, on the transition into
	// paid. Setting the same id again is a no-op, not an error.
	ProviderIntentID string
	Reason           string
}

// plan validates one requested transition against the current row and
// returns the column changes to commit. A nil fields map with a nil
// error means the request is a recognized webhook redelivery and
// nothing must be written.
func plan(p *models.Payment, params ApplyParams) (dbx.Params, error) {
	// Redelivered webhook effect: the online payment already sits in
	// the target state. The shortcut never applies to cash rows, an
	// organizer retrying with a stale version must see the conflict.
	if p.Status == params.To && p.Method == models.MethodOnline {
		if params.To == models.PaymentPaid && params.ProviderIntentID != "" && p.ProviderIntentID != params.ProviderIntentID {
			return nil, status.Errorf(status.CodeConflict,
				"payment %s already paid through a different intent", p.ID)
		}
		return nil, nil
	}

	if p.Version != params.ExpectedVersion {
		return nil, status.ErrVersionConflict
	}

	if !CanTransition(p.Status, params.To, p.Method) {
		return nil, status.Errorf(status.CodeValidation,
			"illegal transition %s -> %s for %s payment %s", p.Status, params.To, p.Method, p.ID)
	}

	fields := dbx.Params{"status": string(params.To)}
	if params.To == models.PaymentPaid {
		if p.PaidAt == nil {
			fields["paid_at"] = nowUTC()
		}
		if params.ProviderIntentID != "" && p.ProviderIntentID == "" {
			fields["provider_intent_id"] = params.ProviderIntentID
		}
	}
	return fields, nil
}

// Apply validates and commits one transition. The returned bool is
// false when the request was recognized as an already-applied effect
// (webhook redelivery) and nothing was written.
func (m *Machine) Apply(ctx context.Context, params ApplyParams) (*models.Payment, bool, error) {
	p, err := m.store.GetByID(ctx, params.PaymentID)
	if err != nil {
		return nil, false, err
	}

	fields, err := plan(p, params)
	if err != nil {
		return nil, false, err
	}
	if fields == nil {
		return p, false, nil
	}

	if err := m.store.casUpdate(ctx, p.ID, params.ExpectedVersion, fields); err != nil {
		return nil, false, err
	}

	slog.Info("payment transition",
		"payment_id", p.ID,
		"from", p.Status,
		"to", params.To,
		"superseded_version", params.ExpectedVersion,
		"reason", params.Reason,
	)
	monitoring.TrackPaymentTransition(string(p.Status), string(params.To))

	updated, err := m.store.GetByID(ctx, p.ID)
	if err != nil {
		return nil, true, err
	}
	return updated, true, nil
}
