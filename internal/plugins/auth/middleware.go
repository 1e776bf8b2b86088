package auth

import (
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pagecraft/pagecraft/internal/apperror"
	"github.com/pagecraft/pagecraft/internal/middleware"
)

// contextKeySession stores the authorized session in the Echo context.
const contextKeySession = "auth_session"

const (
	signInPath = "/signin"
	homePath   = "/"
)

// AccessRule grants the listed roles access to every path at or below
// PathPrefix.
type AccessRule struct {
	PathPrefix string
	Roles      []Role
}

// allows reports whether role is listed in the rule.
func (r AccessRule) allows(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// matches reports whether path is PathPrefix itself or below it, so
// "/admin" covers "/admin/users" but not "/administrator".
func (r AccessRule) matches(path string) bool {
	prefix := strings.TrimSuffix(r.PathPrefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Guard returns middleware that renews the caller's session on every request
// and enforces rules on access-controlled paths. Rules are copied at
// construction and never change afterwards; the most specific matching
// prefix wins.
//
// Denials are redirects for browsers (to /signin when signed out, to / when
// the role is insufficient), HX-Redirect for HTMX, and JSON 401/403 under
// /api/.
func Guard(sessions SessionService, rules []AccessRule) echo.MiddlewareFunc {
	table := make([]AccessRule, len(rules))
	copy(table, rules)
	sort.SliceStable(table, func(i, j int) bool {
		return len(table[i].PathPrefix) > len(table[j].PathPrefix)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			cookies := EchoCookies(c)

			if err := sessions.UpdateUserSessionExpiration(ctx, cookies); err != nil {
				slog.Warn("session renewal failed",
					slog.String("path", c.Request().URL.Path),
					slog.Any("error", err),
				)
			}

			rule, ok := matchRule(table, c.Request().URL.Path)
			if !ok {
				return next(c)
			}

			session, err := sessions.GetUserFromSession(ctx, cookies)
			if err != nil {
				return apperror.NewInternal(err)
			}
			if session == nil {
				return denyUnauthenticated(c)
			}
			if !rule.allows(session.Role) {
				slog.Info("access denied",
					slog.String("user_id", session.ID),
					slog.String("role", string(session.Role)),
					slog.String("path", c.Request().URL.Path),
				)
				return denyForbidden(c)
			}

			c.Set(contextKeySession, session)
			return next(c)
		}
	}
}

func matchRule(rules []AccessRule, path string) (AccessRule, bool) {
	for _, r := range rules {
		if r.matches(path) {
			return r, true
		}
	}
	return AccessRule{}, false
}

// denyUnauthenticated sends signed-out callers to the sign-in page,
// remembering where they were headed.
func denyUnauthenticated(c echo.Context) error {
	if middleware.IsAPI(c) {
		return c.JSON(http.StatusUnauthorized, apperror.Fail(apperror.NewUnauthorized("authentication required")))
	}

	target := signInPath
	if c.Request().Method == http.MethodGet {
		target += "?next=" + url.QueryEscape(c.Request().URL.RequestURI())
	}
	return redirect(c, target)
}

// denyForbidden sends signed-in callers without the required role home.
func denyForbidden(c echo.Context) error {
	if middleware.IsAPI(c) {
		return c.JSON(http.StatusForbidden, apperror.Fail(apperror.NewForbidden("insufficient role")))
	}
	return redirect(c, homePath)
}

func redirect(c echo.Context, target string) error {
	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", target)
		return c.NoContent(http.StatusNoContent)
	}
	return c.Redirect(http.StatusSeeOther, target)
}

// --- Exported getters for other plugins ---

// GetSession retrieves the session authorized by Guard from the Echo
// context. Returns nil on paths the guard does not protect.
func GetSession(c echo.Context) *UserSession {
	session, ok := c.Get(contextKeySession).(*UserSession)
	if !ok {
		return nil
	}
	return session
}

// safeNext returns next when it is a local absolute path, else "/". Stops
// the sign-in redirect from being used as an open redirect.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return homePath
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" {
		return homePath
	}
	return next
}
