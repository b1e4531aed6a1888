package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"

	"event-settlement/internal/status"
)

// toAPIError maps the engine taxonomy onto HTTP. Retryable codes stay
// 5xx so upstream callers (and the provider's webhook retry) try again;
// everything else is a terminal 4xx.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	e, ok := status.AsError(err)
	if !ok {
		return apis.NewInternalServerError("internal error", err)
	}

	switch e.Code {
	case status.CodeValidation:
		return apis.NewBadRequestError(e.Message, nil)
	case status.CodeUnauthorized:
		return apis.NewUnauthorizedError(e.Message, nil)
	case status.CodeForbidden:
		return apis.NewForbiddenError(e.Message, nil)
	case status.CodeNotFound:
		return apis.NewNotFoundError(e.Message, nil)
	case status.CodeConflict:
		return apis.NewApiError(http.StatusConflict, e.Message, map[string]any{"code": string(e.Code)})
	case status.CodeRateLimited:
		return apis.NewTooManyRequestsError(e.Message, nil)
	case status.CodeCalculation:
		return apis.NewApiError(http.StatusUnprocessableEntity, e.Message, map[string]any{"code": string(e.Code)})
	default:
		return apis.NewInternalServerError(e.Message, nil)
	}
}
