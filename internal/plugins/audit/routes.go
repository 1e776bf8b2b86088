package audit

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the audit routes. They live under /api/admin so the
// global route guard restricts them to admins.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/admin/audit", h.Recent)
}
