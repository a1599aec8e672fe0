package api

import (
	"errors"
	"net/http"
	"strings"

	"storefront/internal/cart"
	"storefront/internal/payment"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// createCheckout handles checkout session creation
func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.deps.Checkout.CreateCheckout(c.Request.Context(), &req)
	if err != nil {
		h.checkoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) checkoutError(c *gin.Context, err error) {
	var (
		quantityErr    *service.InvalidQuantityError
		invalidErr     *service.InvalidItemsError
		unavailableErr *service.UnavailableItemsError
	)

	switch {
	case errors.Is(err, service.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
	case errors.As(err, &quantityErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Quantity must be at least 1",
			"invalidIds": quantityErr.IDs,
		})
	case errors.As(err, &invalidErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "Invalid sticker IDs: " + strings.Join(invalidErr.IDs, ", "),
			"invalidIds": invalidErr.IDs,
		})
	case errors.As(err, &unavailableErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       "The following items are no longer available: " + strings.Join(unavailableErr.Titles, ", "),
			"unavailable": unavailableErr.Titles,
		})
	default:
		h.logger.Error("Checkout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session"})
	}
}

// stripeWebhook handles payment provider webhook deliveries. The body is
// read raw because the signature covers the exact bytes.
func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	_, err = h.deps.Webhooks.HandleEvent(c.Request.Context(), payload, c.GetHeader(payment.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingSignature):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing stripe-signature header"})
		case errors.Is(err, service.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
		case errors.Is(err, service.ErrMissingCartMetadata):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing cart metadata"})
		case errors.Is(err, service.ErrOrderLookup):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		case errors.Is(err, service.ErrOrderInsert):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write orders"})
		default:
			h.logger.Error("Unexpected webhook failure", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// checkoutSuccess clears the buyer's cart once the provider redirects back
func (h *Handler) checkoutSuccess(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing session_id"})
		return
	}

	if cartID, ok := h.existingCartID(c); ok {
		if _, err := h.withCart(c, cartID, (*cart.Store).ClearCart); err != nil {
			h.logger.Error("Failed to clear cart after checkout",
				zap.String("session_id", sessionID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cart"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"cleared":   true,
	})
}
