package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pagecraft/pagecraft/internal/apperror"
	"github.com/pagecraft/pagecraft/internal/middleware"
	"github.com/pagecraft/pagecraft/internal/plugins/audit"
	"github.com/pagecraft/pagecraft/internal/templates/pages"
)

// Handler handles HTTP requests for sign-in, log-out, and account
// management. Handlers are thin: they bind the request, call the service,
// and render the response. No business logic lives here.
type Handler struct {
	service  AuthService
	sessions SessionService
	audit    audit.AuditService
}

// NewHandler creates a new auth handler. auditSvc may be nil to disable
// the activity log.
func NewHandler(service AuthService, sessions SessionService, auditSvc audit.AuditService) *Handler {
	return &Handler{service: service, sessions: sessions, audit: auditSvc}
}

// SignInForm renders the sign-in page (GET /signin).
func (h *Handler) SignInForm(c echo.Context) error {
	// Already signed in: nothing to do here.
	session, err := h.sessions.GetUserFromSession(c.Request().Context(), EchoCookies(c))
	if err == nil && session != nil {
		return c.Redirect(http.StatusSeeOther, safeNext(c.QueryParam("next")))
	}

	return middleware.Render(c, http.StatusOK, pages.SignInPage(pages.SignInView{
		CSRFToken: middleware.GetCSRFToken(c),
		Next:      c.QueryParam("next"),
	}))
}

// SignIn processes the sign-in form (POST /signin). Validation errors come
// back inline with 422, bad credentials as a banner with 401 or 403.
func (h *Handler) SignIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if _, err := h.signIn(c, req); err != nil {
		appErr, ok := apperror.As(err)
		if !ok || appErr.Code >= http.StatusInternalServerError {
			return err
		}

		view := pages.SignInView{
			CSRFToken: middleware.GetCSRFToken(c),
			Email:     req.Email,
			Next:      req.Next,
		}
		if appErr.Fields != nil {
			view.Fields = appErr.Fields
		} else {
			view.Banner = appErr.Message
		}

		// HTMX only swaps 2xx responses.
		if middleware.IsHTMX(c) {
			return middleware.Render(c, http.StatusOK, pages.SignInForm(view))
		}
		return middleware.Render(c, appErr.Code, pages.SignInPage(view))
	}

	target := safeNext(req.Next)
	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", target)
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, target)
}

// LogOut ends the session and sends the browser home (POST /logout).
func (h *Handler) LogOut(c echo.Context) error {
	h.logOut(c)

	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", homePath)
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, homePath)
}

// --- JSON API ---

// APISignIn authenticates a JSON client (POST /api/auth/signin). Failures
// are returned as errors and rendered as a Result by the error handler.
func (h *Handler) APISignIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	summary, err := h.signIn(c, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperror.OK(http.StatusOK, summary))
}

// APILogOut ends the session (POST /api/auth/logout). Always 204.
func (h *Handler) APILogOut(c echo.Context) error {
	h.logOut(c)
	return c.NoContent(http.StatusNoContent)
}

// Session reports who is signed in (GET /api/auth/session).
func (h *Handler) Session(c echo.Context) error {
	session, err := h.sessions.GetUserFromSession(c.Request().Context(), EchoCookies(c))
	if err != nil {
		return apperror.NewInternal(err)
	}
	if session == nil {
		return apperror.NewUnauthorized("authentication required")
	}

	summary, err := h.service.CurrentUser(c.Request().Context(), session)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apperror.OK(http.StatusOK, summary))
}

// CreateUser creates an admin or moderator account (POST /api/admin/users).
// The route guard has already required an admin session; the service
// checks the actor again.
func (h *Handler) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	actor := GetSession(c)
	summary, err := h.service.CreateRoleUser(c.Request().Context(), actor, CreateUserInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Role:        Role(req.Role),
	})
	if err != nil {
		return err
	}

	h.record(c, audit.ActionUserCreated, actor.ID, map[string]any{
		"created_id": summary.ID,
		"role":       string(summary.Role),
	})
	return c.JSON(http.StatusCreated, apperror.OK(http.StatusCreated, summary))
}

// --- Shared helpers ---

// signIn runs the sign-in and records the outcome. Validation failures are
// not recorded.
func (h *Handler) signIn(c echo.Context, req SignInRequest) (*UserSummary, error) {
	summary, err := h.service.SignIn(c.Request().Context(), SignInInput{
		Email:    req.Email,
		Password: req.Password,
	}, EchoCookies(c))
	if err != nil {
		switch apperror.SafeCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			h.record(c, audit.ActionSignInFailed, "", map[string]any{
				"email":  req.Email,
				"reason": apperror.SafeKind(err),
			})
		}
		return nil, err
	}

	h.record(c, audit.ActionSignedIn, summary.ID, nil)
	return summary, nil
}

// logOut ends the session, recording who left when a session existed.
func (h *Handler) logOut(c echo.Context) {
	ctx := c.Request().Context()
	cookies := EchoCookies(c)

	session, _ := h.sessions.GetUserFromSession(ctx, cookies)
	_ = h.service.LogOut(ctx, cookies)

	if session != nil {
		h.record(c, audit.ActionSignedOut, session.ID, nil)
	}
}

// record writes an audit entry. Failures are logged by the audit service
// and never affect the response.
func (h *Handler) record(c echo.Context, action, userID string, details map[string]any) {
	if h.audit == nil {
		return
	}
	_ = h.audit.Log(c.Request().Context(), &audit.Entry{
		UserID:  userID,
		Action:  action,
		IP:      c.RealIP(),
		Details: details,
	})
}
