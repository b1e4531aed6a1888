package handlers

import (
	"io"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"event-settlement/internal/webhook"
)

// Stripe caps webhook payloads well below this.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	gate *webhook.Gate
}

func NewWebhookHandler(gate *webhook.Gate) *WebhookHandler {
	return &WebhookHandler{gate: gate}
}

// HandleProviderWebhook accepts one provider delivery. 200 means the
// event is durably applied or known-duplicate and must not be resent;
// 401 means the signature was bad; any 5xx asks the provider to retry.
func (h *WebhookHandler) HandleProviderWebhook(e *core.RequestEvent) error {
	payload, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return apis.NewBadRequestError("unreadable payload", err)
	}

	result, err := h.gate.Process(e.Request.Context(), payload, e.Request.Header.Get("Stripe-Signature"))
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"received":  true,
		"type":      result.Type,
		"duplicate": result.Duplicate,
	})
}
