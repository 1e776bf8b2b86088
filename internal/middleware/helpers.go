package middleware

import (
	"context"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// ContextInjector copies request-scoped data from the Echo context (set by
// the route guard) into the Go context so templ components can read it.
// Registered once at startup in internal/app so this package never imports
// plugin types.
var ContextInjector func(echo.Context, context.Context) context.Context

// IsHTMX returns true if the current request was initiated by HTMX and is
// not a boosted navigation. Boosted requests expect full pages.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true" &&
		c.Request().Header.Get("HX-Boosted") != "true"
}

// IsAPI returns true if the request targets the JSON API under /api/.
func IsAPI(c echo.Context) bool {
	path := c.Request().URL.Path
	return path == "/api" || len(path) >= 5 && path[:5] == "/api/"
}

// Render writes a templ component to the response with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := c.Request().Context()
	if ContextInjector != nil {
		ctx = ContextInjector(c, ctx)
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}
