package api

import (
	"net/http"
	"strings"

	"storefront/internal/auth"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	adminPrefix    = "/admin"
	adminLoginPath = adminPrefix + "/login"
)

const adminLoginHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><meta name="robots" content="noindex"><title>Admin Login</title></head>
<body>
<form id="login">
  <label>Password <input type="password" name="password" required></label>
  <button type="submit">Sign in</button>
  <p id="error" hidden></p>
</form>
<script>
document.getElementById("login").addEventListener("submit", async (e) => {
  e.preventDefault();
  const res = await fetch("/api/admin/login", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({password: e.target.password.value}),
  });
  if (res.ok) { window.location.href = "/admin"; return; }
  const body = await res.json().catch(() => ({}));
  const el = document.getElementById("error");
  el.textContent = body.error || "Login failed";
  el.hidden = false;
});
</script>
</body>
</html>`

type adminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// adminLogin exchanges the admin password for a token cookie
func (h *Handler) adminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.AdminLoginsTotal.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
		return
	}

	if !h.deps.Passwords.Check(req.Password) {
		util.AdminLoginsTotal.WithLabelValues("rejected").Inc()
		h.logger.Warn("Admin login rejected", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, h.deps.Auth.Mint(), int(auth.TokenMaxAge.Seconds()), "/", "", h.deps.SecureCookies, true)

	util.AdminLoginsTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func isAdminPath(path string) bool {
	return path == adminPrefix || strings.HasPrefix(path, adminPrefix+"/")
}

// adminGate redirects every request under /admin except the login form to
// the login form unless it carries a valid token cookie. It runs on the
// engine so unknown paths and wrong methods are gated as well.
func (h *Handler) adminGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !isAdminPath(path) || path == adminLoginPath {
			c.Next()
			return
		}

		token, err := c.Cookie(auth.CookieName)
		if err != nil || !h.deps.Auth.Verify(token) {
			c.Redirect(http.StatusTemporaryRedirect, adminLoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// adminLoginPage serves the login form
func (h *Handler) adminLoginPage(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(adminLoginHTML))
}

// adminDashboard returns recent daily metrics and the headline summary
func (h *Handler) adminDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Dashboard.GetDashboard(c.Request.Context()))
}

// adminOrders lists every order with its sticker title
func (h *Handler) adminOrders(c *gin.Context) {
	orders, err := h.deps.Orders.ListOrdersWithTitles(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// adminStickers lists published stickers for the inventory table
func (h *Handler) adminStickers(c *gin.Context) {
	stickers, err := h.deps.Catalog.ListPublishedStickers(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list published stickers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stickers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stickers": stickers})
}
