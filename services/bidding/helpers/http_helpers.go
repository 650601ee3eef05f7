package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/biddingerrors"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, biddingerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return http.StatusGone, "auction is closed"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAlreadyExists):
		return http.StatusConflict, "auction already exists"
	case errors.Is(err, biddingerrors.ErrUnknownBidder):
		return http.StatusUnprocessableEntity, "unknown bidder"
	case errors.Is(err, biddingerrors.ErrPersistence):
		return http.StatusServiceUnavailable, "storage unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the mapped error response. Rejected bids carry the current price.
func RespondError(c *gin.Context, err error) (int, string) {
	status, message := MapErrorToHTTP(err)
	wrapped := fmt.Errorf("%s: %w", message, err)
	if current, ok := biddingerrors.CurrentPrice(err); ok {
		utils.JSONErrorWithData(c, status, wrapped, message, PriceErrorDetails{CurrentPrice: current.String()})
		return status, message
	}
	utils.JSONError(c, status, wrapped, message)
	return status, message
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
