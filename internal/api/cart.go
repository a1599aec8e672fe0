package api

import (
	"errors"
	"net/http"

	"storefront/internal/cart"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	cartCookieName   = "cart_id"
	cartCookieMaxAge = 30 * 24 * 60 * 60
)

type cartView struct {
	Items     []cart.LineItem `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

func viewOf(s *cart.Store) cartView {
	items := s.Items()
	if items == nil {
		items = []cart.LineItem{}
	}
	return cartView{Items: items, Total: s.Total(), ItemCount: s.ItemCount()}
}

type addCartItemRequest struct {
	ItemID string `json:"itemId" binding:"required"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// existingCartID returns the caller's cart id if the cookie holds a valid one
func (h *Handler) existingCartID(c *gin.Context) (string, bool) {
	id, err := c.Cookie(cartCookieName)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// cartID returns the caller's cart id, issuing a new cookie on first use
func (h *Handler) cartID(c *gin.Context) string {
	if id, ok := h.existingCartID(c); ok {
		return id
	}
	id := uuid.New().String()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cartCookieName, id, cartCookieMaxAge, "/", "", h.deps.SecureCookies, true)
	return id
}

// withCart applies fn to the persisted cart and writes the result back.
// Concurrent requests on one cart are serialized by the store.
func (h *Handler) withCart(c *gin.Context, cartID string, fn func(*cart.Store)) (*cart.Store, error) {
	return h.deps.Carts.Mutate(c.Request.Context(), cartID, fn)
}

func (h *Handler) respondCart(c *gin.Context, action string, fn func(*cart.Store)) {
	s, err := h.withCart(c, h.cartID(c), fn)
	if err != nil {
		h.logger.Error("Cart operation failed", zap.String("action", action), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cart"})
		return
	}
	util.CartMutationsTotal.WithLabelValues(action).Inc()
	c.JSON(http.StatusOK, viewOf(s))
}

// getCart returns the caller's cart
func (h *Handler) getCart(c *gin.Context) {
	id, ok := h.existingCartID(c)
	if !ok {
		c.JSON(http.StatusOK, viewOf(cart.NewStore()))
		return
	}

	s, err := h.deps.Carts.Load(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
		return
	}
	c.JSON(http.StatusOK, viewOf(s))
}

// addCartItem adds one unit of a purchasable sticker, priced from the catalog
func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sticker, err := h.deps.Catalog.GetPurchasableSticker(c.Request.Context(), req.ItemID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sticker not found"})
		return
	}
	if err != nil {
		h.logger.Error("Catalog lookup failed", zap.String("sticker_id", req.ItemID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sticker"})
		return
	}

	thumb := sticker.ThumbnailURL
	if thumb == nil {
		image := sticker.ImageURL
		thumb = &image
	}

	h.respondCart(c, "add", func(s *cart.Store) {
		s.AddItem(cart.Candidate{
			ItemID:       sticker.ID,
			Title:        sticker.Title,
			ThumbnailURL: thumb,
			UnitPrice:    sticker.Price,
		})
	})
}

// updateCartItem sets an absolute quantity; zero or less removes the line
func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	itemID := c.Param("id")
	h.respondCart(c, "update", func(s *cart.Store) {
		s.UpdateQuantity(itemID, *req.Quantity)
	})
}

// removeCartItem drops a line from the cart
func (h *Handler) removeCartItem(c *gin.Context) {
	itemID := c.Param("id")
	h.respondCart(c, "remove", func(s *cart.Store) {
		s.RemoveItem(itemID)
	})
}

// clearCart empties the cart
func (h *Handler) clearCart(c *gin.Context) {
	h.respondCart(c, "clear", (*cart.Store).ClearCart)
}
