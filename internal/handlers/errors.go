package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"ticket-market/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// statusCode maps a typed market rejection to an HTTP status.
func statusCode(err error) int {
	if errors.Is(err, status.ErrNotFound) {
		return http.StatusNotFound
	}
	switch status.KindOf(err) {
	case status.KindValidation:
		return http.StatusBadRequest
	case status.KindAuthorization:
		return http.StatusForbidden
	case status.KindStateConflict:
		return http.StatusConflict
	case status.KindFunds:
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// respondError writes a typed market rejection with its reason code.
// Untyped errors become a generic 500.
func respondError(e *core.RequestEvent, err error) error {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		return apis.NewInternalServerError("Something went wrong", err)
	}
	return e.JSON(code, map[string]any{
		"status":  code,
		"code":    status.CodeOf(err),
		"kind":    status.KindOf(err),
		"message": err.Error(),
	})
}

func requireAuth(e *core.RequestEvent) (string, error) {
	if e.Auth == nil {
		return "", apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return e.Auth.Id, nil
}

func pathID(e *core.RequestEvent) (uint64, error) {
	id, err := strconv.ParseUint(e.Request.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apis.NewBadRequestError("Invalid listing id", nil)
	}
	return id, nil
}
