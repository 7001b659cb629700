package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civic-identity/internal/service"
)

// AccountHandler expone el flujo de baja de cuenta.
type AccountHandler struct {
	logger    *zap.Logger
	deletions *service.DeletionService
}

func NewAccountHandler(logger *zap.Logger, deletions *service.DeletionService) *AccountHandler {
	return &AccountHandler{logger: logger, deletions: deletions}
}

// RequestDeletion maneja POST /account/deletion (requiere sesion).
func (h *AccountHandler) RequestDeletion(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	token, err := h.deletions.Request(c.Request.Context(), user.ID, req.Reason)
	if err != nil {
		writeServiceError(c, h.logger, "request deletion", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "deletion_requested", "expires_at": token.ExpiresAt})
}

// ConfirmDeletion maneja POST /account/deletion/confirm. El token llega por email.
func (h *AccountHandler) ConfirmDeletion(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	former, err := h.deletions.Confirm(c.Request.Context(), req.Token)
	if err != nil {
		writeServiceError(c, h.logger, "confirm deletion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "deleted",
		"user_id":      former.ID,
		"confirmed_at": former.DeletionConfirmedAt,
	})
}

// CancelDeletion maneja DELETE /account/deletion (requiere sesion).
func (h *AccountHandler) CancelDeletion(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	if err := h.deletions.Cancel(c.Request.Context(), user.ID); err != nil {
		writeServiceError(c, h.logger, "cancel deletion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deletion_cancelled"})
}
