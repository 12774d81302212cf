package api

import (
	"net/http"
	"strings"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionHeader carries the anonymous session token on cart API calls
const SessionHeader = "X-Session-ID"

type addItemRequest struct {
	CartID    string `json:"cart_id"`
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func sessionFrom(c *gin.Context) (string, bool) {
	sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   service.ErrSessionRequired.Message,
		})
		return "", false
	}
	return sessionID, true
}

func (h *Handler) ensureCart(c *gin.Context) {
	sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}

	cartID, err := h.services.Mutator.EnsureCart(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err, "Failed to create cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "cart_id": cartID})
}

func (h *Handler) addCartItem(c *gin.Context) {
	sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, err := h.services.Mutator.AddItem(c.Request.Context(), sessionID, req.CartID, req.ProductID, req.Quantity, req.Size)
	if err != nil {
		h.writeError(c, err, "Failed to add item")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "item": item})
}

func (h *Handler) updateCartItem(c *gin.Context) {
	sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.services.Mutator.UpdateQuantity(c.Request.Context(), sessionID, c.Param("id"), *req.Quantity); err != nil {
		h.writeError(c, err, "Failed to update item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "removed": *req.Quantity <= 0})
}

func (h *Handler) removeCartItem(c *gin.Context) {
	sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}

	if err := h.services.Mutator.RemoveItem(c.Request.Context(), sessionID, c.Param("id")); err != nil {
		h.writeError(c, err, "Failed to remove item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) clearCart(c *gin.Context) {
	sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}

	removed, err := h.services.Mutator.ClearCart(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err, "Failed to clear cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}
