package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"event-settlement/internal/payment"
	"event-settlement/models"
)

type PaymentHandler struct {
	payments *payment.Service
}

func NewPaymentHandler(payments *payment.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type checkoutRequest struct {
	AttendanceID string `json:"attendance_id"`
	EventID      string `json:"event_id"`
	OrganizerID  string `json:"organizer_id"`
	Amount       int64  `json:"amount"`
	Description  string `json:"description"`
	Method       string `json:"method"`
}

// CreateCheckoutSession opens a payment for an attendance. Online
// payments get a hosted checkout URL; cash just records the obligation.
// Unauthenticated callers get a one-time guest token in the response.
func (h *PaymentHandler) CreateCheckoutSession(e *core.RequestEvent) error {
	var req checkoutRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}

	if req.Method == string(models.MethodCash) {
		if e.Auth == nil {
			return apis.NewUnauthorizedError("cash payments require an organizer session", nil)
		}
		p, err := h.payments.CreateCashPayment(e.Request.Context(), req.AttendanceID, req.EventID, e.Auth.Id, req.Amount)
		if err != nil {
			return toAPIError(err)
		}
		return e.JSON(http.StatusCreated, p)
	}

	result, err := h.payments.CreateCheckoutSession(e.Request.Context(), payment.CheckoutRequest{
		AttendanceID: req.AttendanceID,
		EventID:      req.EventID,
		OrganizerID:  req.OrganizerID,
		Amount:       req.Amount,
		Description:  req.Description,
		RateKey:      rateKey(e),
		Guest:        e.Auth == nil,
	})
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusCreated, result)
}

type cashUpdateRequest struct {
	Status          string `json:"status"`
	ExpectedVersion int64  `json:"expected_version"`
}

// UpdateCashStatus marks a cash payment received or waived. The body
// carries the version the organizer's screen was rendered from; a
// stale one is rejected with 409 and nothing is written.
func (h *PaymentHandler) UpdateCashStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("organizer session required", nil)
	}

	var req cashUpdateRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}

	p, err := h.payments.UpdateCashStatus(e.Request.Context(), payment.CashUpdateRequest{
		PaymentID:       e.Request.PathValue("paymentId"),
		NewStatus:       models.PaymentStatus(req.Status),
		ExpectedVersion: req.ExpectedVersion,
		CallerID:        e.Auth.Id,
	})
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, p)
}

// GetPayment serves the organizer, or a guest presenting the token
// issued at checkout in the X-Guest-Token header.
func (h *PaymentHandler) GetPayment(e *core.RequestEvent) error {
	callerID := ""
	if e.Auth != nil {
		callerID = e.Auth.Id
	}
	p, err := h.payments.GetPayment(
		e.Request.Context(),
		e.Request.PathValue("paymentId"),
		callerID,
		e.Request.Header.Get("X-Guest-Token"),
	)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, p)
}

// rateKey throttles per account when signed in, per source address
// otherwise.
func rateKey(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	return "ip:" + e.RealIP()
}
