package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/utils"

	"github.com/gin-gonic/gin"
)

// CallerKey is the gin context key holding the authenticated user id
const CallerKey = "caller_id"

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// HandleServiceError maps err, answers the request and logs the failure
func HandleServiceError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	logFields := map[string]any{"handler": handlerName, "status": status, "error": err.Error()}
	for k, v := range fields {
		logFields[k] = v
	}
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", logFields)
		return
	}
	utils.Warn(handlerName+": request rejected", logFields)
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message.
// Bid rejections carry their own actionable message.
func MapErrorToHTTP(err error) (int, string) {
	var rejection *biddingerrors.RejectionError
	if errors.As(err, &rejection) {
		if errors.Is(rejection.Rule, biddingerrors.ErrNonPositiveAmount) {
			return http.StatusBadRequest, rejection.Error()
		}
		return http.StatusConflict, rejection.Error()
	}

	switch {
	case errors.Is(err, biddingerrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "permission denied"
	case errors.Is(err, biddingerrors.ErrNotBidOwner):
		return http.StatusForbidden, "bid belongs to another bidder"
	case errors.Is(err, biddingerrors.ErrOpportunityNotFound):
		return http.StatusNotFound, "opportunity not found"
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, biddingerrors.ErrUserNotFound):
		return http.StatusNotFound, "user profile not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for opportunity"
	case errors.Is(err, biddingerrors.ErrAggregateConflict):
		return http.StatusConflict, "opportunity changed concurrently, please retry"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidOpportunity):
		return http.StatusBadRequest, "invalid opportunity details"
	case errors.Is(err, biddingerrors.ErrInvalidProfile):
		return http.StatusBadRequest, "invalid profile details"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// CallerID returns the authenticated user id set by the auth middleware
func CallerID(c *gin.Context) string {
	return c.GetString(CallerKey)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
