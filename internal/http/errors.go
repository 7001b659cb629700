package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civic-identity/internal/service"
)

// writeServiceError traduce los errores del servicio a respuestas HTTP.
// Los fallos inesperados se registran y se responden sin detalle.
func writeServiceError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var (
		rateErr       *service.RateLimitedError
		spamErr       *service.SpamRejectedError
		validationErr *service.ValidationError
	)
	switch {
	case errors.As(err, &rateErr):
		c.Header("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":               "rate_limited",
			"retry_after_seconds": rateErr.RetryAfterSeconds,
		})
	case errors.As(err, &spamErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "spam_rejected", "reasons": spamErr.Reasons})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": validationErr.Fields})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	case errors.Is(err, service.ErrTokenInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "token_invalid"})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
	case errors.Is(err, service.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "email_not_verified"})
	case errors.Is(err, service.ErrNothingToCancel):
		c.JSON(http.StatusConflict, gin.H{"error": "nothing_to_cancel"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
	case errors.Is(err, service.ErrStorageUnavailable), errors.Is(err, service.ErrCodeSpaceExhausted):
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
	default:
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
