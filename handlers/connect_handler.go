package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"event-settlement/internal/connect"
	"event-settlement/internal/status"
	"event-settlement/models"
)

type ConnectHandler struct {
	connects *connect.Service
}

func NewConnectHandler(connects *connect.Service) *ConnectHandler {
	return &ConnectHandler{connects: connects}
}

// GetStatus returns the organizer's onboarding state for the UI. The
// ui_status field is always derived on the fly; no_account is a valid
// answer, not an error.
func (h *ConnectHandler) GetStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("organizer session required", nil)
	}

	snap, acct, err := h.connects.Snapshot(e.Request.Context(), e.Auth.Id, false)
	if errors.Is(err, status.ErrNotFound) {
		return e.JSON(http.StatusOK, map[string]any{
			"ui_status": models.UINoAccount,
		})
	}
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ui_status":       connect.UIStatusFor(acct.DBStatus, snap, true),
		"db_status":       acct.DBStatus,
		"charges_enabled": snap.ChargesEnabled,
		"payouts_enabled": snap.PayoutsEnabled,
		"currently_due":   snap.CurrentlyDue,
		"past_due":        snap.PastDue,
	})
}

type registerRequest struct {
	ProviderAccountID string `json:"provider_account_id"`
}

// Register links an existing provider sub-account to the organizer and
// runs the first classification.
func (h *ConnectHandler) Register(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("organizer session required", nil)
	}

	var req registerRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("invalid request body", err)
	}
	if req.ProviderAccountID == "" {
		return apis.NewBadRequestError("provider_account_id is required", nil)
	}

	acct, err := h.connects.Register(e.Request.Context(), e.Auth.Id, req.ProviderAccountID)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusCreated, acct)
}
