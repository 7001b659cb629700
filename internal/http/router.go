package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"civic-identity/internal/service"
)

// RouterDeps agrupa lo que NewRouter necesita para montar las rutas.
type RouterDeps struct {
	Auth          *AuthHandler
	Account       *AccountHandler
	Admin         *AdminHandler
	Payments      *PaymentHandler
	Sessions      *service.SessionService
	PaymentTokens *service.PaymentTokenVerifier
	AdminToken    string
	// Registry recibe las metricas HTTP y se expone en /metrics. Puede ser nil.
	Registry *prometheus.Registry
	// Health se invoca en /healthz; nil responde siempre ok.
	Health func(ctx context.Context) error
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())
	if deps.Registry != nil {
		r.Use(requestMetricsMiddleware(deps.Registry))
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", healthHandler(deps.Health))

	api := r.Group("", jsonContentTypeMiddleware())
	session := SessionMiddleware(deps.Sessions)

	auth := api.Group("/auth")
	auth.POST("/register", deps.Auth.Register)
	auth.POST("/login", deps.Auth.Login)
	auth.POST("/logout", deps.Auth.Logout)
	auth.POST("/verification/request", session, deps.Auth.RequestVerification)
	auth.POST("/verification/resend", deps.Auth.ResendVerification)
	auth.POST("/verification/confirm", deps.Auth.ConfirmVerification)

	api.GET("/me", session, deps.Auth.Me)

	account := api.Group("/account")
	account.POST("/deletion", session, deps.Account.RequestDeletion)
	account.POST("/deletion/confirm", deps.Account.ConfirmDeletion)
	account.DELETE("/deletion", session, deps.Account.CancelDeletion)

	admin := api.Group("/admin", AdminTokenMiddleware(deps.AdminToken))
	admin.GET("/rate-limits", deps.Admin.RateLimitStats)
	admin.GET("/rate-limits/:action/:client", deps.Admin.RateLimitEntry)
	admin.DELETE("/rate-limits/:action/:client", deps.Admin.ResetRateLimit)
	admin.GET("/deletions/stale", deps.Admin.StaleDeletions)

	api.POST("/internal/payments/founder", PaymentAuthMiddleware(deps.PaymentTokens), deps.Payments.Founder)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

func requestMetricsMiddleware(reg prometheus.Registerer) gin.HandlerFunc {
	duration := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "identity_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		duration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
