package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"artx-auction/internal/biddingerrors"
	model "artx-auction/internal/models"
	"artx-auction/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by the authentication middleware
const (
	ActorIDKey   = "actor_id"
	ActorRoleKey = "actor_role"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message.
// Taxonomy errors keep their human-readable text.
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrNotFound):
		return http.StatusNotFound, biddingerrors.Message(err)
	case errors.Is(err, biddingerrors.ErrInvalidState):
		return http.StatusConflict, biddingerrors.Message(err)
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, biddingerrors.Message(err)
	case errors.Is(err, biddingerrors.ErrInsufficientFunds):
		return http.StatusPaymentRequired, biddingerrors.Message(err)
	case errors.Is(err, biddingerrors.ErrAuthorization):
		return http.StatusForbidden, biddingerrors.Message(err)
	case errors.Is(err, biddingerrors.ErrValidation):
		return http.StatusBadRequest, biddingerrors.Message(err)
	case errors.Is(err, biddingerrors.ErrConflict):
		return http.StatusServiceUnavailable, "auction is busy, please retry"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the mapped error envelope and logs it
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// Actor returns the authenticated caller stored by the auth middleware
func Actor(c *gin.Context) (model.Actor, bool) {
	id := c.GetString(ActorIDKey)
	if id == "" {
		return model.Actor{}, false
	}
	return model.Actor{ID: id, Role: model.Role(c.GetString(ActorRoleKey))}, true
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
