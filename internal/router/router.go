// Package router wires the HTTP surface onto an Echo instance.  Routes
// are grouped by audience: health, public booking, the payment webhook,
// operator auth and the protected admin overrides.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/dmorelli/tutoring-slots/internal/config"
	"github.com/dmorelli/tutoring-slots/internal/handler"
	"github.com/dmorelli/tutoring-slots/internal/middleware"
)

// RegisterRoutes registers routes that are always available and carry
// no middleware.  Currently that is only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the anonymous booking surface.  The slot
// listing is read-heavy and sits behind the short response cache; the
// mutating endpoints share the per-IP rate limiter so an anonymous
// client cannot farm holds.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, rdb *redis.Client, rl config.RateLimitConfig, cc config.CacheConfig) {
	e.GET("/v1/slots", p.ListSlots, middleware.CacheResponse(cc, rdb))

	limited := e.Group("/v1", middleware.RateLimit(rl, rdb))
	limited.POST("/holds", p.CreateHold)
	limited.POST("/holds/release", p.ReleaseHold)
	limited.POST("/checkout", p.Checkout)
}

// RegisterWebhook registers the payment provider callback.  It is not
// rate limited: the provider retries on anything but a timely 200 and
// throttling it would only multiply deliveries.
func RegisterWebhook(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/payments/webhook", w.HandlePaymentNotification)
}

// RegisterAuth registers the operator login endpoint.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	e.POST("/v1/auth/login", a.Login)
}

// RegisterAdmin registers the operator overrides under /v1/admin.  All
// routes in the group require a valid access token carrying the ADMIN
// role.
func RegisterAdmin(e *echo.Echo, ad *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(handler.RoleAdmin))

	g.POST("/slots", ad.CreateSlot)
	g.POST("/slots/:id/block", ad.Block)
	g.POST("/slots/:id/force-pending", ad.ForcePending)
	g.POST("/slots/:id/release", ad.Release)
	g.DELETE("/slots/:id", ad.DeleteSlot)
}
