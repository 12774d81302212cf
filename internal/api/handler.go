package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Services groups what the handlers call into
type Services struct {
	Cart      *service.CartService
	Mutator   *service.CartMutator
	Admin     *service.AdminService
	Captcha   *service.CaptchaService
	TwoFactor *service.TwoFactorService
	Notify    *service.NotifyService
}

// Handler contains HTTP handlers
type Handler struct {
	services       Services
	adminToken     string
	requestTimeout time.Duration
	checks         []ReadinessCheck
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, adminToken string, requestTimeout time.Duration, checks ...ReadinessCheck) *Handler {
	return &Handler{
		services:       services,
		adminToken:     adminToken,
		requestTimeout: requestTimeout,
		checks:         checks,
		logger:         util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	if h.requestTimeout > 0 {
		router.Use(timeoutMiddleware(h.requestTimeout))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	functions := router.Group("/functions/v1")
	functions.Use(corsMiddleware())
	{
		functions.OPTIONS("/:name", preflight)
		functions.POST("/get_cart_with_session", h.getCartWithSession)
		functions.POST("/admin-save", h.adminSave)
		functions.POST("/verify-hcaptcha", h.verifyHCaptcha)
		functions.POST("/send-2fa-code", h.sendTwoFactorCode)
		functions.POST("/verify-user-2fa", h.verifyUserTwoFactor)
		functions.POST("/notify-order-update", h.notifyOrderUpdate)
	}

	v1 := router.Group("/api/v1")
	v1.Use(corsMiddleware())
	{
		v1.OPTIONS("/*path", preflight)
		v1.POST("/cart", h.ensureCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PATCH("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)
		v1.DELETE("/cart/items", h.clearCart)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	for _, check := range h.checks {
		if err := check.Check(c.Request.Context()); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", check.Name), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"check":  check.Name,
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// statusFor maps an error classification onto an HTTP status
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ClientInput:
		return http.StatusBadRequest
	case apperr.Authorization:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Expired:
		return http.StatusGone
	case apperr.Throttled:
		return http.StatusTooManyRequests
	case apperr.UpstreamRejection:
		return http.StatusBadGateway
	case apperr.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the message of a classified error. Unclassified
// failures are described by fallback so internals do not leak.
func publicMessage(err error, fallback string) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Message != "" && e.Kind != apperr.Unknown {
		return e.Message
	}
	return fallback
}

// writeError responds with {success:false, error} using the error's classification
func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   publicMessage(err, fallback),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// timeoutMiddleware bounds every request's context
func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// corsMiddleware allows browser calls from any origin with the anon key headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type, x-session-id, idempotency-key")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Next()
	}
}

func preflight(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
