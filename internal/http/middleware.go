package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"civic-identity/internal/domain"
	"civic-identity/internal/service"
)

const (
	currentUserKey  = "current_user"
	sessionTokenKey = "session_token"

	AdminTokenHeader = "X-Admin-Token"
)

// SessionMiddleware valida el token de sesion Bearer y guarda el usuario en el contexto.
func SessionMiddleware(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
			c.Abort()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		_, user, err := sessions.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			} else {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
			}
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Set(sessionTokenKey, token)
		c.Next()
	}
}

// PaymentAuthMiddleware exige un JWT firmado por el sistema de pagos.
func PaymentAuthMiddleware(verifier *service.PaymentTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verifier.Enabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payments callback disabled"})
			c.Abort()
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}
		if _, err := verifier.Verify(token); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminTokenMiddleware protege las rutas de operacion con un secreto compartido.
// Sin token configurado las rutas quedan deshabilitadas.
func AdminTokenMiddleware(adminToken string) gin.HandlerFunc {
	expected := []byte(adminToken)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			c.Abort()
			return
		}
		got := []byte(strings.TrimSpace(c.GetHeader(AdminTokenHeader)))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser obtiene el usuario autenticado desde el contexto.
func CurrentUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}
