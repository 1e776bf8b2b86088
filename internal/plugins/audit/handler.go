package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pagecraft/pagecraft/internal/apperror"
)

// Handler serves the admin activity listing. Access is enforced by the
// route guard's /api/admin rule.
type Handler struct {
	service AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService) *Handler {
	return &Handler{service: service}
}

// Recent returns a page of audit entries (GET /api/admin/audit?page=N).
func (h *Handler) Recent(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	result, err := h.service.Recent(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperror.OK(http.StatusOK, result))
}
