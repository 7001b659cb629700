package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"civic-identity/internal/service"
)

// PaymentHandler recibe los callbacks del sistema de pagos.
type PaymentHandler struct {
	logger   *zap.Logger
	founders *service.FounderService
}

func NewPaymentHandler(logger *zap.Logger, founders *service.FounderService) *PaymentHandler {
	return &PaymentHandler{logger: logger, founders: founders}
}

// Founder maneja POST /internal/payments/founder.
func (h *PaymentHandler) Founder(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Active *bool  `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.logger.Warn("founder callback with malformed user id", zap.String("user_id", req.UserID))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	if *req.Active {
		err = h.founders.SetFounder(c.Request.Context(), userID.String())
	} else {
		err = h.founders.RemoveFounder(c.Request.Context(), userID.String())
	}
	if err != nil {
		writeServiceError(c, h.logger, "founder callback", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
