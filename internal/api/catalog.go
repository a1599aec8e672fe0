package api

import (
	"errors"
	"net/http"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// listStickers lists purchasable stickers, optionally for one pricing tier
func (h *Handler) listStickers(c *gin.Context) {
	tier := c.Query("tier")
	if tier != "" && !models.IsPricingTier(tier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pricing tier"})
		return
	}

	stickers, err := h.deps.Catalog.ListPurchasableStickers(c.Request.Context(), tier)
	if err != nil {
		h.logger.Error("Failed to list stickers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stickers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stickers": stickers})
}

// getSticker returns one purchasable sticker
func (h *Handler) getSticker(c *gin.Context) {
	sticker, err := h.deps.Catalog.GetPurchasableSticker(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sticker not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load sticker", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sticker"})
		return
	}

	c.JSON(http.StatusOK, sticker)
}
