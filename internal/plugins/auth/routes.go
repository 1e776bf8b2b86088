package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/pagecraft/pagecraft/internal/middleware"
)

// RegisterRoutes sets up all auth routes on the given Echo instance. Access
// control is applied globally by Guard, so only the admin endpoint is
// protected, via the access rules.
//
// Sign-in endpoints share signInLimiter to slow credential stuffing.
func RegisterRoutes(e *echo.Echo, h *Handler, signInLimiter middleware.Limiter) {
	limit := middleware.RateLimit(signInLimiter)

	e.GET("/signin", h.SignInForm)
	e.POST("/signin", h.SignIn, limit)
	e.POST("/logout", h.LogOut)

	api := e.Group("/api/auth")
	api.POST("/signin", h.APISignIn, limit)
	api.POST("/logout", h.APILogOut)
	api.GET("/session", h.Session)

	e.POST("/api/admin/users", h.CreateUser)
}
