package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"event-settlement/internal/payout"
)

type PayoutHandler struct {
	payouts *payout.Service
}

func NewPayoutHandler(payouts *payout.Service) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// CreatePayout batches the event's settled online sales and starts the
// transfer. 409 when a batch is already open for the event.
func (h *PayoutHandler) CreatePayout(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("organizer session required", nil)
	}
	batch, err := h.payouts.CreatePayout(e.Request.Context(), e.Request.PathValue("eventId"), e.Auth.Id)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusCreated, batch)
}

func (h *PayoutHandler) RetryPayout(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("organizer session required", nil)
	}
	batch, err := h.payouts.Retry(e.Request.Context(), e.Request.PathValue("payoutId"), e.Auth.Id)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, batch)
}

// ReconcilePayout forces an immediate check against provider records
// instead of waiting for the background sweep.
func (h *PayoutHandler) ReconcilePayout(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("organizer session required", nil)
	}
	if _, err := h.payouts.GetPayout(e.Request.Context(), e.Request.PathValue("payoutId"), e.Auth.Id); err != nil {
		return toAPIError(err)
	}
	batch, err := h.payouts.Reconcile(e.Request.Context(), e.Request.PathValue("payoutId"))
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, batch)
}

func (h *PayoutHandler) GetPayout(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("organizer session required", nil)
	}
	batch, err := h.payouts.GetPayout(e.Request.Context(), e.Request.PathValue("payoutId"), e.Auth.Id)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, batch)
}
