package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civic-identity/internal/guard"
	"civic-identity/internal/service"
)

// AdminHandler expone operaciones de mantenimiento protegidas por ADMIN_TOKEN.
type AdminHandler struct {
	logger    *zap.Logger
	limiter   *guard.RateLimiter
	deletions *service.DeletionService
}

func NewAdminHandler(logger *zap.Logger, limiter *guard.RateLimiter, deletions *service.DeletionService) *AdminHandler {
	return &AdminHandler{logger: logger, limiter: limiter, deletions: deletions}
}

// RateLimitStats maneja GET /admin/rate-limits.
func (h *AdminHandler) RateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.limiter.Stats())
}

// RateLimitEntry maneja GET /admin/rate-limits/:action/:client.
func (h *AdminHandler) RateLimitEntry(c *gin.Context) {
	entry, ok := h.limiter.Lookup(guard.Action(c.Param("action")), c.Param("client"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"attempts":      entry.Attempts,
		"last_attempt":  entry.LastAttempt,
		"blocked_until": entry.BlockedUntil,
	})
}

// ResetRateLimit maneja DELETE /admin/rate-limits/:action/:client.
func (h *AdminHandler) ResetRateLimit(c *gin.Context) {
	action := guard.Action(c.Param("action"))
	client := c.Param("client")
	if !h.limiter.Reset(action, client) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	h.logger.Info("rate limit entry reset", zap.String("action", string(action)), zap.String("client_id", client))
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// StaleDeletions maneja GET /admin/deletions/stale.
func (h *AdminHandler) StaleDeletions(c *gin.Context) {
	users, err := h.deletions.StaleRequests(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.logger, "list stale deletions", err)
		return
	}
	type staleRequest struct {
		UserID      string     `json:"user_id"`
		UniqueCode  string     `json:"unique_code"`
		RequestedAt *time.Time `json:"requested_at"`
		Reason      string     `json:"reason,omitempty"`
	}
	out := make([]staleRequest, 0, len(users))
	for _, u := range users {
		out = append(out, staleRequest{
			UserID:      u.ID,
			UniqueCode:  u.UniqueCode,
			RequestedAt: u.DeletionRequestedAt,
			Reason:      u.DeletionReason,
		})
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}
