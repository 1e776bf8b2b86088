package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// csrfTokenLength is the number of random bytes in a CSRF token.
	csrfTokenLength = 32

	csrfCookieName = "pagecraft_csrf"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"

	contextKeyCSRF = "csrf_token"
)

// CSRF returns middleware that implements the double-submit cookie pattern
// for all state-changing requests (POST, PUT, PATCH, DELETE).
//
//  1. If no CSRF cookie exists, generate one and set it.
//  2. On mutating requests, the cookie value must match the X-CSRF-Token
//     header or the csrf_token form field.
//
// Requests under /api/ may skip the token by sending a JSON body instead:
// a cross-site page cannot send application/json without a CORS preflight,
// which this server never grants.
func CSRF(secure bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			cookieToken := ""
			if cookie, err := req.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
				cookieToken = cookie.Value
			} else {
				token, genErr := generateCSRFToken()
				if genErr != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate CSRF token")
				}
				c.SetCookie(&http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: false, // Read by the editor's fetch wrapper.
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
				cookieToken = token
			}
			c.Set(contextKeyCSRF, cookieToken)

			if isSafeMethod(req.Method) {
				return next(c)
			}

			if strings.HasPrefix(req.URL.Path, "/api/") && isJSONRequest(req) {
				return next(c)
			}

			submitted := req.Header.Get(csrfHeaderName)
			if submitted == "" {
				submitted = req.FormValue(csrfFormField)
			}

			if submitted == "" || subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "invalid or missing CSRF token")
			}

			return next(c)
		}
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// isJSONRequest reports whether the request body is declared as JSON.
func isJSONRequest(req *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
	return err == nil && mediaType == echo.MIMEApplicationJSON
}

func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetCSRFToken retrieves the CSRF token from the Echo context.
// Templates embed it as a hidden form field.
func GetCSRFToken(c echo.Context) string {
	if token, ok := c.Get(contextKeyCSRF).(string); ok {
		return token
	}
	return ""
}
