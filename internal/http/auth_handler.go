package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civic-identity/internal/guard"
	"civic-identity/internal/service"
)

// AuthHandler expone alta, acceso, cierre de sesion y verificacion de email.
type AuthHandler struct {
	logger        *zap.Logger
	guard         *guard.Guard
	accounts      *service.AccountService
	sessions      *service.SessionService
	verifications *service.VerificationService
}

func NewAuthHandler(logger *zap.Logger, g *guard.Guard, accounts *service.AccountService, sessions *service.SessionService, verifications *service.VerificationService) *AuthHandler {
	return &AuthHandler{
		logger:        logger,
		guard:         g,
		accounts:      accounts,
		sessions:      sessions,
		verifications: verifications,
	}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	clientID := guard.ClientID(c.Request.Header)
	user, err := h.accounts.Register(c.Request.Context(), req, clientID, c.Request.Header)
	if err != nil {
		writeServiceError(c, h.logger, "register", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password, guard.ClientID(c.Request.Header))
	if err != nil {
		writeServiceError(c, h.logger, "login", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":          res.User,
		"session_token": res.Session.Token,
		"expires_at":    res.Session.ExpiresAt,
	})
}

// Logout maneja POST /auth/logout. Revocar un token desconocido tambien responde 200.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if err := h.accounts.Logout(c.Request.Context(), token); err != nil {
		writeServiceError(c, h.logger, "logout", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// Me maneja GET /me.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// RequestVerification maneja POST /auth/verification/request (requiere sesion).
func (h *AuthHandler) RequestVerification(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	if user.EmailVerified {
		c.JSON(http.StatusOK, gin.H{"status": "already_verified"})
		return
	}
	token, err := h.verifications.Request(c.Request.Context(), user.ID)
	if err != nil {
		writeServiceError(c, h.logger, "request verification", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "verification_sent", "expires_at": token.ExpiresAt})
}

// ResendVerification maneja POST /auth/verification/resend.
// La respuesta es identica exista o no la direccion, y tambien cuando se limita el reenvio.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.guard.CheckResend(guard.ClientID(c.Request.Header), req.Email); err == nil {
		if err := h.verifications.Resend(c.Request.Context(), req.Email); err != nil {
			h.logger.Error("resend verification failed", zap.Error(err))
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "verification_sent_if_registered"})
}

// ConfirmVerification maneja POST /auth/verification/confirm.
// Si el token no vale pero la sesion del llamador ya esta verificada, responde already_verified.
func (h *AuthHandler) ConfirmVerification(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.verifications.Confirm(c.Request.Context(), req.Token)
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) && h.callerAlreadyVerified(c) {
			c.JSON(http.StatusOK, gin.H{"status": "already_verified"})
			return
		}
		writeServiceError(c, h.logger, "confirm verification", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verified", "user": user})
}

func (h *AuthHandler) callerAlreadyVerified(c *gin.Context) bool {
	token, ok := bearerToken(c)
	if !ok {
		return false
	}
	_, user, err := h.sessions.Validate(c.Request.Context(), token)
	return err == nil && user.EmailVerified
}
