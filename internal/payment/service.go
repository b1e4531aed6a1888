package payment

import (
	"context"
	"errors"
	"time"

	"event-settlement/internal/provider"
	"event-settlement/internal/status"
	"event-settlement/models"
	"event-settlement/security"
	"event-settlement/utils"
)

// connectGate decides whether an organizer may accept new payments.
type connectGate interface {
	GateForCheckout(ctx context.Context, organizerID string) error
}

type limiter interface {
	Allow(ctx context.Context, key string) error
}

type notifier interface {
	PaymentStatusChanged(attendanceID, paymentID, newStatus string, version int64)
}

// Service drives the attendee-facing payment lifecycle: checkout
// session creation for online payments and organizer-driven status
// changes for cash.
type Service struct {
	store    *Store
	machine  *Machine
	provider provider.Client
	gate     connectGate
	limiter  limiter
	notify   notifier

	currency        string
	successURL      string
	cancelURL       string
	providerTimeout time.Duration
}

type ServiceConfig struct {
	Currency        string
	SuccessURL      string
	CancelURL       string
	ProviderTimeout time.Duration
}

func NewService(store *Store, machine *Machine, providerClient provider.Client, gate connectGate, l limiter, n notifier, cfg ServiceConfig) *Service {
	return &Service{
		store:           store,
		machine:         machine,
		provider:        providerClient,
		gate:            gate,
		limiter:         l,
		notify:          n,
		currency:        cfg.Currency,
		successURL:      cfg.SuccessURL,
		cancelURL:       cfg.CancelURL,
		providerTimeout: cfg.ProviderTimeout,
	}
}

type CheckoutRequest struct {
	AttendanceID string
	EventID      string
	OrganizerID  string
	Amount       int64
	Description  string
	// RateKey identifies the caller for throttling (user id or IP).
	RateKey string
	// Guest requests an opaque credential instead of account auth.
	Guest bool
}

type CheckoutResult struct {
	PaymentID  string `json:"payment_id"`
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
	// GuestToken is returned exactly once and never stored in clear.
	GuestToken string `json:"guest_token,omitempty"`
}

// CreateCheckoutSession creates the pending payment row and the hosted
// checkout session for it. A session-creation failure moves the row to
// failed so a later attempt starts clean with a new row.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.AttendanceID == "" || req.EventID == "" || req.OrganizerID == "" {
		return nil, status.Errorf(status.CodeValidation, "attendance, event and organizer ids are required")
	}
	if req.Amount <= 0 {
		return nil, status.Errorf(status.CodeValidation, "amount must be positive")
	}

	if err := s.limiter.Allow(ctx, req.RateKey); err != nil {
		return nil, err
	}
	if err := s.gate.GateForCheckout(ctx, req.OrganizerID); err != nil {
		return nil, err
	}

	var guestToken, guestHash string
	if req.Guest {
		token, err := utils.GenerateGuestToken()
		if err != nil {
			return nil, status.Wrap(status.CodeDatabase, "generate guest token", err)
		}
		hash, err := security.HashGuestToken(token)
		if err != nil {
			return nil, status.Wrap(status.CodeDatabase, "hash guest token", err)
		}
		guestToken, guestHash = token, hash
	}

	p, err := s.store.Create(ctx, CreateParams{
		AttendanceID:   req.AttendanceID,
		EventID:        req.EventID,
		OrganizerID:    req.OrganizerID,
		Method:         models.MethodOnline,
		Amount:         req.Amount,
		GuestTokenHash: guestHash,
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	session, err := s.provider.CreateCheckoutSession(callCtx, provider.CheckoutParams{
		PaymentID:   p.ID,
		Amount:      p.Amount,
		Currency:    s.currency,
		Description: req.Description,
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
	})
	if err != nil {
		// The row must not stay open: fail it so the attendee can
		// retry with a fresh payment.
		if _, _, failErr := s.machine.Apply(ctx, ApplyParams{
			PaymentID:       p.ID,
			To:              models.PaymentFailed,
			ExpectedVersion: p.Version,
			Reason:          "checkout session creation failed",
		}); failErr != nil && !errors.Is(failErr, status.ErrVersionConflict) {
			return nil, failErr
		}
		return nil, err
	}

	if err := s.store.AttachProviderSession(ctx, p.ID, session.ID); err != nil {
		return nil, err
	}

	return &CheckoutResult{
		PaymentID:  p.ID,
		SessionID:  session.ID,
		SessionURL: session.URL,
		GuestToken: guestToken,
	}, nil
}

// CreateCashPayment records an obligation the organizer collects in
// person. Cash never flows through the provider or any payout.
func (s *Service) CreateCashPayment(ctx context.Context, attendanceID, eventID, organizerID string, amount int64) (*models.Payment, error) {
	if amount < 0 {
		return nil, status.Errorf(status.CodeValidation, "amount must not be negative")
	}
	return s.store.Create(ctx, CreateParams{
		AttendanceID: attendanceID,
		EventID:      eventID,
		OrganizerID:  organizerID,
		Method:       models.MethodCash,
		Amount:       amount,
	})
}

type CashUpdateRequest struct {
	PaymentID       string
	NewStatus       models.PaymentStatus
	ExpectedVersion int64
	CallerID        string
}

// UpdateCashStatus marks a cash payment received or waived. The caller
// presents the version it last saw; a stale version is rejected with a
// conflict and nothing is merged.
func (s *Service) UpdateCashStatus(ctx context.Context, req CashUpdateRequest) (*models.Payment, error) {
	if req.NewStatus != models.PaymentReceived && req.NewStatus != models.PaymentWaived {
		return nil, status.Errorf(status.CodeValidation, "cash status must be received or waived, got %q", req.NewStatus)
	}

	p, err := s.store.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.OrganizerID != req.CallerID {
		return nil, status.Errorf(status.CodeForbidden, "only the event organizer may update cash payments")
	}

	updated, applied, err := s.machine.Apply(ctx, ApplyParams{
		PaymentID:       req.PaymentID,
		To:              req.NewStatus,
		ExpectedVersion: req.ExpectedVersion,
		Reason:          "organizer cash update",
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.notify.PaymentStatusChanged(updated.AttendanceID, updated.ID, string(updated.Status), updated.Version)
	}
	return updated, nil
}

// GetPayment enforces visibility: the organizer of the event, or a
// guest presenting the matching token.
func (s *Service) GetPayment(ctx context.Context, paymentID, callerID, guestToken string) (*models.Payment, error) {
	p, err := s.store.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if callerID != "" && callerID == p.OrganizerID {
		return p, nil
	}
	if security.CheckGuestToken(p.GuestTokenHash, guestToken) {
		return p, nil
	}
	return nil, status.Errorf(status.CodeForbidden, "not allowed to view this payment")
}
