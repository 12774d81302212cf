package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/mail"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actionSaveProduct = "save_product"

type cartRequest struct {
	SessionID string `json:"session_id"`
}

// getCartWithSession is the cart aggregation function
func (h *Handler) getCartWithSession(c *gin.Context) {
	// an unreadable body is treated as an empty one and fails on the session check
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Ignoring unreadable cart request body", zap.Error(err))
	}

	lines, err := h.services.Cart.GetCart(c.Request.Context(), strings.TrimSpace(req.SessionID))
	if err != nil {
		status := http.StatusInternalServerError
		if apperr.Is(err, apperr.ClientInput) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   publicMessage(err, "unable to load cart"),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    lines,
	})
}

type adminSaveRequest struct {
	Action         string                 `json:"action"`
	Product        *models.ProductPayload `json:"product"`
	Inventory      []models.InventoryRow  `json:"inventory"`
	ImageURL       string                 `json:"image_url"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// adminSave is the privileged write endpoint the admin client falls back to
func (h *Handler) adminSave(c *gin.Context) {
	if !h.authorizeAdmin(c) {
		return
	}

	var req adminSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.Action != actionSaveProduct {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid action"})
		return
	}
	if req.Product == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing product data"})
		return
	}

	payload := req.Product
	if len(req.Inventory) > 0 {
		payload.Inventory = req.Inventory
	}
	if req.ImageURL != "" {
		payload.ImageURL = req.ImageURL
	}
	if req.IdempotencyKey != "" {
		payload.IdempotencyKey = req.IdempotencyKey
	}
	if payload.IdempotencyKey == "" {
		payload.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	res, err := h.services.Admin.SaveProduct(c.Request.Context(), payload)
	if err != nil {
		h.writeError(c, err, "Failed to save product")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"id":       res.ID,
		"created":  res.Created,
		"replayed": res.Replayed,
	})
}

// authorizeAdmin checks the bearer token. An unset server token rejects everyone.
func (h *Handler) authorizeAdmin(c *gin.Context) bool {
	auth := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if auth == "" || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Missing authorization"})
		return false
	}
	if h.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "Not authorized"})
		return false
	}
	return true
}

type captchaRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
}

func (h *Handler) verifyHCaptcha(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	if !h.services.Captcha.OriginAllowed(c.GetHeader("Origin")) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": service.ErrOriginNotAllowed.Message})
		return
	}

	var req captchaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON payload"})
		return
	}

	verdict, err := h.services.Captcha.Verify(c.Request.Context(), req.Token, service.ClientIP(c.Request.Header), req.Action)
	switch {
	case errors.Is(err, service.ErrCaptchaMisconfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Server misconfigured"})
		return
	case apperr.Is(err, apperr.Transient):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "Verification unavailable"})
		return
	case err != nil:
		h.writeError(c, err, "Verification failed")
		return
	}

	if !verdict.Success {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Verification failed",
			"action":  verdict.Action,
			"details": gin.H{"error_codes": verdict.ErrorCodes},
		})
		return
	}

	c.JSON(http.StatusOK, verdict)
}

type sendCodeRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (h *Handler) sendTwoFactorCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON body"})
		return
	}

	code, err := h.services.TwoFactor.Issue(c.Request.Context(), req.UserID, req.Email)
	if err != nil {
		h.writeError(c, err, "Failed to send code")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"expires_at": code.ExpiresAt,
	})
}

type verifyCodeRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

func (h *Handler) verifyUserTwoFactor(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON body"})
		return
	}

	err := h.services.TwoFactor.Verify(c.Request.Context(), req.UserID, req.Code)
	if errors.Is(err, service.ErrInvalidCode) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": service.ErrInvalidCode.Message})
		return
	}
	if err != nil {
		h.writeError(c, err, "Server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "2FA verified successfully",
	})
}

type notifyRequest struct {
	To             string     `json:"to"`
	OrderID        string     `json:"orderId"`
	OrderIDSnake   string     `json:"order_id"`
	Status         string     `json:"status"`
	TrackingNumber string     `json:"tracking_number"`
	ShippedAt      *time.Time `json:"shipped_at"`
	DeliveredAt    *time.Time `json:"delivered_at"`
}

func (h *Handler) notifyOrderUpdate(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	if req.OrderID == "" {
		req.OrderID = req.OrderIDSnake
	}

	res, err := h.services.Notify.NotifyOrderUpdate(c.Request.Context(), service.OrderUpdate{
		To:             req.To,
		OrderID:        req.OrderID,
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
		ShippedAt:      req.ShippedAt,
		DeliveredAt:    req.DeliveredAt,
	})
	if err != nil {
		if apperr.Is(err, apperr.ClientInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": publicMessage(err, "Invalid request")})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "Failed to send email",
			"provider": mail.ProviderSendGrid,
			"details":  publicMessage(err, ""),
		})
		return
	}

	if !res.Sent {
		c.JSON(http.StatusNotImplemented, gin.H{
			"ok":       false,
			"provider": res.Provider,
			"hint":     "Email provider not configured. Use the mailto link to send from an email client.",
			"mailto":   res.Mailto,
			"subject":  res.Subject,
			"text":     res.Text,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "provider": res.Provider})
}
