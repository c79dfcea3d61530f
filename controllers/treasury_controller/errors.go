package treasury_controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joy095/treasury/logger"
	"github.com/joy095/treasury/models/ledger_models"
	"github.com/joy095/treasury/services/report_service"
	"github.com/joy095/treasury/services/treasury_service"
)

var ErrInvalidRequest = errors.New("invalid request")

// respondError writes the status and body for an error returned by the services.
func respondError(c *gin.Context, err error) {
	var ceiling *treasury_service.CeilingError
	if errors.As(err, &ceiling) {
		code := "EXCEEDS_STORE_AVAILABLE"
		if errors.Is(err, treasury_service.ErrInsufficientTreasuryFunds) {
			code = "INSUFFICIENT_TREASURY_FUNDS"
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":      code,
			"error":     err.Error(),
			"requested": ceiling.Requested.StringFixed(2),
			"ceiling":   ceiling.Ceiling.StringFixed(2),
		})
		return
	}

	switch {
	case errors.Is(err, treasury_service.ErrStoreNotFound), errors.Is(err, report_service.ErrStoreNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "STORE_NOT_FOUND", "error": "Store not found"})
	case errors.Is(err, treasury_service.ErrNothingToPay):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "NOTHING_TO_PAY", "error": "Nothing to pay out"})
	case errors.Is(err, treasury_service.ErrActorRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": "Unauthorized"})
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, treasury_service.ErrInvalidAmount),
		errors.Is(err, treasury_service.ErrInvalidPayment),
		errors.Is(err, report_service.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "error": err.Error()})
	case errors.Is(err, ledger_models.ErrConcurrencyConflict):
		logger.WarnLogger.Warnf("Request lost to concurrent updates: %v", err)
		c.JSON(http.StatusConflict, gin.H{"code": "CONFLICT", "error": "The ledger changed concurrently, please retry"})
	case errors.Is(err, ledger_models.ErrStorageUnavailable):
		logger.ErrorLogger.Errorf("Ledger unavailable: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "UNAVAILABLE", "error": "Ledger temporarily unavailable"})
	default:
		logger.ErrorLogger.Errorf("Unhandled error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "SERVER_ERROR", "error": "Internal server error"})
	}
}
