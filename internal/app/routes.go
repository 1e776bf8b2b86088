package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pagecraft/pagecraft/internal/database"
	"github.com/pagecraft/pagecraft/internal/middleware"
	"github.com/pagecraft/pagecraft/internal/plugins/audit"
	"github.com/pagecraft/pagecraft/internal/plugins/auth"
	"github.com/pagecraft/pagecraft/internal/templates/pages"
)

// RegisterRoutes sets up all application routes. It registers public routes
// directly and delegates to the auth plugin for its own.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Landing page.
	e.GET("/", func(c echo.Context) error {
		return middleware.Render(c, http.StatusOK, pages.Landing())
	})

	// Health check for container orchestration. Reports unhealthy when
	// either backing store is unreachable; sessions need both.
	e.GET("/healthz", a.healthz)

	// Sign-in attempts are counted in Redis so the limit holds across
	// replicas.
	limiter := middleware.NewRedisLimiter(a.Redis, "ratelimit:signin:", a.Config.Auth.SignInRateLimit, time.Minute)
	auth.RegisterRoutes(e, a.handler, limiter)

	// Admin activity log, guarded by the /api/admin access rule.
	audit.RegisterRoutes(e, a.auditHandler)
}

func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	health := database.CheckHealth(ctx, a.DB, a.Redis)
	if !health.OK() {
		return c.JSON(http.StatusServiceUnavailable, health)
	}
	return c.JSON(http.StatusOK, health)
}
