package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CheckoutCreator creates hosted checkout sessions
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResponse, error)
}

// WebhookProcessor handles raw payment webhook deliveries
type WebhookProcessor interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (service.Outcome, error)
}

// Catalog serves the public and admin sticker listings
type Catalog interface {
	ListPurchasableStickers(ctx context.Context, tier string) ([]models.Sticker, error)
	GetPurchasableSticker(ctx context.Context, id string) (*models.Sticker, error)
	ListPublishedStickers(ctx context.Context) ([]models.Sticker, error)
}

// OrderLister serves the admin orders table
type OrderLister interface {
	ListOrdersWithTitles(ctx context.Context) ([]models.OrderWithTitle, error)
}

// DashboardReader serves the admin dashboard
type DashboardReader interface {
	GetDashboard(ctx context.Context) *service.Dashboard
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP handlers
type Deps struct {
	Checkout      CheckoutCreator
	Webhooks      WebhookProcessor
	Catalog       Catalog
	Orders        OrderLister
	Dashboard     DashboardReader
	Carts         *cart.Persister
	Auth          *auth.Authenticator
	Passwords     *auth.PasswordChecker
	SecureCookies bool
	Readiness     map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:   deps,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(h.adminGate())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/checkout", h.createCheckout)
		apiGroup.POST("/webhooks/stripe", h.stripeWebhook)
		apiGroup.POST("/admin/login", h.adminLogin)

		apiGroup.GET("/stickers", h.listStickers)
		apiGroup.GET("/stickers/:id", h.getSticker)

		apiGroup.GET("/cart", h.getCart)
		apiGroup.POST("/cart/items", h.addCartItem)
		apiGroup.PATCH("/cart/items/:id", h.updateCartItem)
		apiGroup.DELETE("/cart/items/:id", h.removeCartItem)
		apiGroup.DELETE("/cart", h.clearCart)
	}

	router.GET("/checkout/success", h.checkoutSuccess)

	admin := router.Group("/admin")
	{
		admin.GET("/login", h.adminLoginPage)
		admin.GET("", h.adminDashboard)
		admin.GET("/orders", h.adminOrders)
		admin.GET("/stickers", h.adminStickers)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing service
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.deps.Readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
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
