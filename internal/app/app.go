// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires the auth plugin into the server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/pagecraft/pagecraft/internal/apperror"
	"github.com/pagecraft/pagecraft/internal/config"
	"github.com/pagecraft/pagecraft/internal/middleware"
	"github.com/pagecraft/pagecraft/internal/plugins/audit"
	"github.com/pagecraft/pagecraft/internal/plugins/auth"
	"github.com/pagecraft/pagecraft/internal/templates/layouts"
	"github.com/pagecraft/pagecraft/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool.
	DB *sql.DB

	// Redis holds sessions and rate-limit counters.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Auth is the auth service, exposed for startup tasks such as
	// creating the bootstrap admin.
	Auth auth.AuthService

	// Audit records account activity.
	Audit audit.AuditService

	sessions     auth.SessionService
	handler      *auth.Handler
	auditHandler *audit.Handler
}

// New creates a new App instance with the given dependencies, builds the
// auth services, and configures the Echo server with global middleware and
// error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Only trusted proxies may set the client IP; rate limiting and the
	// audit log key on it.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	sessions := auth.NewSessionService(auth.NewRedisSessionStore(rdb), auth.SessionOptions{
		TTL:        cfg.Auth.SessionTTL,
		CookieName: cfg.Auth.CookieName,
		Insecure:   cfg.Auth.InsecureCookie,
	})
	authService := auth.NewAuthService(
		auth.NewUserRepository(db),
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		sessions,
	)
	auditService := audit.NewAuditService(audit.NewAuditRepository(db))

	app := &App{
		Config:       cfg,
		DB:           db,
		Redis:        rdb,
		Echo:         e,
		Auth:         authService,
		Audit:        auditService,
		sessions:     sessions,
		handler:      auth.NewHandler(authService, sessions, auditService),
		auditHandler: audit.NewHandler(auditService),
	}

	// Templates read auth state and the CSRF token from the Go context.
	middleware.ContextInjector = injectLayoutData

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	// Serve static files (CSS).
	e.Static("/static", "static")

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (guard) runs last.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP and HSTS in production only.
	a.Echo.Use(middleware.SecurityHeaders(a.Config.IsProduction()))

	// CSRF -- double-submit cookie pattern on all state-changing requests.
	a.Echo.Use(middleware.CSRF(!a.Config.Auth.InsecureCookie))

	// Route guard -- renews the session on every request and enforces the
	// access rules.
	a.Echo.Use(auth.Guard(a.sessions, accessRules(a.Config.Auth.AccessRules)))
}

// accessRules converts the configured rules to the guard's types.
func accessRules(rules []config.AccessRule) []auth.AccessRule {
	out := make([]auth.AccessRule, 0, len(rules))
	for _, r := range rules {
		roles := make([]auth.Role, 0, len(r.Roles))
		for _, role := range r.Roles {
			roles = append(roles, auth.Role(role))
		}
		out = append(out, auth.AccessRule{PathPrefix: r.PathPrefix, Roles: roles})
	}
	return out
}

// injectLayoutData copies the guard's session and the CSRF token into the
// Go context for templates.
func injectLayoutData(c echo.Context, ctx context.Context) context.Context {
	ctx = layouts.SetCSRFToken(ctx, middleware.GetCSRFToken(c))
	if session := auth.GetSession(c); session != nil {
		ctx = layouts.SetIsAuthenticated(ctx, true)
		ctx = layouts.SetUserID(ctx, session.ID)
		ctx = layouts.SetUserRole(ctx, string(session.Role))
	}
	return ctx
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to appropriate HTTP responses: the Result envelope for API
// requests, error pages for browsers.
//
// For HTMX partial requests that hit errors, we set HX-Retarget and
// HX-Reswap headers so the error page replaces the full body instead of
// being swapped into a partial target.
//
// For 401 errors on browser requests, we redirect to the sign-in page.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	appErr := toAppError(err)
	if appErr.Internal != nil {
		slog.Error("internal error",
			slog.String("type", appErr.Type),
			slog.String("message", appErr.Message),
			slog.Any("internal", appErr.Internal),
			slog.String("path", c.Request().URL.Path),
		)
	}

	// API requests always get the JSON envelope.
	if middleware.IsAPI(c) {
		_ = c.JSON(appErr.Code, apperror.Fail(appErr))
		return
	}

	if middleware.IsHTMX(c) {
		if appErr.Code == http.StatusUnauthorized {
			c.Response().Header().Set("HX-Redirect", "/signin")
			_ = c.NoContent(http.StatusNoContent)
			return
		}
		c.Response().Header().Set("HX-Retarget", "body")
		c.Response().Header().Set("HX-Reswap", "innerHTML")
	}

	if appErr.Code == http.StatusUnauthorized {
		_ = c.Redirect(http.StatusSeeOther, "/signin")
		return
	}

	_ = middleware.Render(c, appErr.Code, pages.ErrorPage(appErr.Code, appErr.Message))
}

// toAppError normalizes any handler error to an AppError. Echo's own HTTP
// errors (404 from the router, 429 from the rate limiter, 403 from CSRF)
// keep their status.
func toAppError(err error) *apperror.AppError {
	if appErr, ok := apperror.As(err); ok {
		return appErr
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		message, _ := echoErr.Message.(string)
		if message == "" || message == http.StatusText(echoErr.Code) {
			message = defaultErrorMessage(echoErr.Code)
		}
		return &apperror.AppError{
			Code:    echoErr.Code,
			Type:    kindForStatus(echoErr.Code),
			Message: message,
		}
	}

	return apperror.NewInternal(err)
}

// kindForStatus maps an HTTP status to the envelope's error kind.
func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return apperror.KindBadRequest
	case http.StatusUnauthorized:
		return apperror.KindUnauthorized
	case http.StatusForbidden:
		return apperror.KindForbidden
	case http.StatusNotFound:
		return apperror.KindNotFound
	case http.StatusConflict:
		return apperror.KindConflict
	case http.StatusUnprocessableEntity:
		return apperror.KindUnprocessableEntity
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		return apperror.KindInternal
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "You need to sign in to access this page."
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "The page you're looking for doesn't exist or has been moved."
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusTooManyRequests:
		return "Too many attempts. Please wait a minute and try again."
	default:
		return "Something went wrong on our end. Please try again."
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Pagecraft server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}

// Shutdown drains in-flight requests, waiting at most timeout.
func (a *App) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.Echo.Shutdown(ctx)
}
